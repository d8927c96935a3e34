// Package api serves transfer history, contacts and the exchange rate over
// HTTP for the wallet front ends.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"monallopay/internal/database"
	"monallopay/internal/health"
	"monallopay/internal/i18n"
	"monallopay/internal/interfaces"
	"monallopay/internal/models"
	"monallopay/internal/validation"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TransferStore persists transfer records.
type TransferStore interface {
	SaveTransfer(ctx context.Context, rec models.TransferRecord) (models.TransferRecord, bool, error)
	ListTransfers(ctx context.Context, q models.TransferQuery) (models.TransferPage, error)
}

// ContactStore persists address book entries.
type ContactStore interface {
	ListContacts(ctx context.Context, owner string) ([]models.Contact, error)
	CreateContact(ctx context.Context, c models.Contact) (models.Contact, error)
	UpdateContact(ctx context.Context, c models.Contact) (models.Contact, error)
	DeleteContact(ctx context.Context, owner string, id int64) error
}

// RateSource exposes the last known exchange rate.
type RateSource interface {
	Current() models.ExchangeRate
}

// Handler wires the HTTP routes to the stores. Emitter, Rates and Health
// are optional.
type Handler struct {
	Transfers  TransferStore
	Contacts   ContactStore
	Emitter    interfaces.EventEmitter
	Rates      RateSource
	Health     *health.Checker
	Translator *i18n.Translator
	Limiter    *rate.Limiter
	Logger     *zerolog.Logger

	now func() time.Time
}

// Router builds a chi router with middleware and all routes registered.
func (h *Handler) Router() (*chi.Mux, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(h.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(h.rateLimit)
	if err := h.RegisterRoutes(router); err != nil {
		return nil, err
	}
	return router, nil
}

// RegisterRoutes mounts the API, health and metrics endpoints on router.
func (h *Handler) RegisterRoutes(router *chi.Mux) error {
	if h.Transfers == nil || h.Contacts == nil || h.Translator == nil {
		return errors.New("api: transfer store, contact store and translator are required")
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/recordTransfer", h.handleRecordTransfer)
		r.Get("/transactions", h.handleTransactions)

		r.Get("/contacts", h.handleListContacts)
		r.Post("/contacts", h.handleCreateContact)
		r.Put("/contacts/{id}", h.handleUpdateContact)
		r.Delete("/contacts/{id}", h.handleDeleteContact)

		r.Get("/rates", h.handleRates)
	})

	if h.Health != nil {
		router.Get("/healthz", h.Health.LivenessHandler)
		router.Get("/readyz", h.Health.ReadinessHandler)
	}
	router.Handle("/metrics", promhttp.Handler())
	return nil
}

type recordTransferRequest struct {
	Amount    string       `json:"amount"`
	Asset     models.Asset `json:"asset"`
	Sender    string       `json:"sender"`
	Recipient string       `json:"recipient"`
	TxHash    string       `json:"txHash"`
	Timestamp string       `json:"timestamp"`
}

func (req recordTransferRequest) record() (models.TransferRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		return models.TransferRecord{}, validationErr("timestamp %q is not ISO-8601", req.Timestamp)
	}
	asset, err := models.ParseAsset(req.Asset.String())
	if err != nil {
		return models.TransferRecord{}, validationErr("%v", err)
	}
	return models.TransferRecord{
		Amount:    strings.TrimSpace(req.Amount),
		Asset:     asset,
		Sender:    strings.TrimSpace(req.Sender),
		Recipient: strings.TrimSpace(req.Recipient),
		TxHash:    strings.TrimSpace(req.TxHash),
		Timestamp: ts.UTC(),
	}, nil
}

func (h *Handler) handleRecordTransfer(w http.ResponseWriter, r *http.Request) {
	lang := h.lang(r)

	var req recordTransferRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}
	rec, err := req.record()
	if err == nil {
		err = validation.ValidateTransferRecord(rec)
	}
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}

	saved, created, err := h.Transfers.SaveTransfer(r.Context(), rec)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "RecordTransferFailed", err)
		return
	}
	if created {
		h.emit(r.Context(), saved)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": h.Translator.T(lang, "TransferRecorded", nil),
	})
}

// emit publishes a stored record. Failures are logged and never fail the
// request: the record is already durable.
func (h *Handler) emit(ctx context.Context, rec models.TransferRecord) {
	if h.Emitter == nil {
		return
	}
	event := models.TransferEvent{
		ID:         uuid.NewString(),
		Record:     rec,
		RecordedAt: h.clock().UTC(),
	}
	if err := h.Emitter.EmitEvent(ctx, event); err != nil {
		h.Logger.Warn().
			Err(err).
			Str("txHash", rec.TxHash).
			Msg("Failed to emit transfer event")
	}
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := validation.NormalizePaging(atoi(q.Get("page")), atoi(q.Get("limit")))

	result, err := h.Transfers.ListTransfers(r.Context(), models.TransferQuery{
		UserAddress: strings.TrimSpace(q.Get("userAddress")),
		Search:      q.Get("search"),
		Currency:    q.Get("currency"),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "FetchTransactionsFailed", err)
		return
	}
	if result.Transactions == nil {
		result.Transactions = []models.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, result)
}

type contactRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	contacts, err := h.Contacts.ListContacts(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "ContactsFailed", err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handler) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeContact(w, r)
	if !ok {
		return
	}

	c, err := h.Contacts.CreateContact(r.Context(), models.Contact{
		OwnerID: owner,
		Name:    req.Name,
		Address: req.Address,
	})
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "ContactsFailed", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeContact(w, r)
	if !ok {
		return
	}

	c, err := h.Contacts.UpdateContact(r.Context(), models.Contact{
		ID:      id,
		OwnerID: owner,
		Name:    req.Name,
		Address: req.Address,
	})
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "ContactNotFound", err)
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, "ContactsFailed", err)
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *Handler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}

	err := h.Contacts.DeleteContact(r.Context(), owner, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "ContactNotFound", err)
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, "ContactsFailed", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message": h.Translator.T(h.lang(r), "ContactDeleted", nil),
		})
	}
}

func (h *Handler) handleRates(w http.ResponseWriter, r *http.Request) {
	if h.Rates == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "RatesUnavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Rates.Current())
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.URL.Query().Get("userId"))
	if owner == "" {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", validationErr("userId is required"))
		return "", false
	}
	return owner, true
}

func (h *Handler) contactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", validationErr("invalid contact id %q", chi.URLParam(r, "id")))
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeContact(w http.ResponseWriter, r *http.Request) (contactRequest, bool) {
	var req contactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return req, false
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if err := validation.ValidateContact(req.Name, req.Address); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return req, false
	}
	return req, true
}

func (h *Handler) lang(r *http.Request) string {
	return h.Translator.Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
}

func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// writeError renders {error, details}. Server errors are logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, messageID string, err error) {
	body := map[string]string{"error": h.Translator.T(h.lang(r), messageID, nil)}
	if err != nil {
		body["details"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg(messageID)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
