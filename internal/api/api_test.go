package api

import (
	"context"
	"encoding/json"
	"errors"
	"monallopay/internal/database"
	"monallopay/internal/health"
	"monallopay/internal/i18n"
	"monallopay/internal/models"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	testSender    = "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

var testTxHash = "0x" + strings.Repeat("ab", 32)

type fakeTransfers struct {
	mu      sync.Mutex
	saved   []models.TransferRecord
	created bool
	err     error
	query   models.TransferQuery
	page    models.TransferPage
}

func (f *fakeTransfers) SaveTransfer(_ context.Context, rec models.TransferRecord) (models.TransferRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.TransferRecord{}, false, f.err
	}
	rec.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, rec)
	return rec, f.created, nil
}

func (f *fakeTransfers) ListTransfers(_ context.Context, q models.TransferQuery) (models.TransferPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	return f.page, f.err
}

type fakeContacts struct {
	mu       sync.Mutex
	contacts map[int64]models.Contact
	nextID   int64
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{contacts: make(map[int64]models.Contact)}
}

func (f *fakeContacts) ListContacts(_ context.Context, owner string) ([]models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Contact
	for _, c := range f.contacts {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContacts) CreateContact(_ context.Context, c models.Contact) (models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	f.contacts[c.ID] = c
	return c, nil
}

func (f *fakeContacts) UpdateContact(_ context.Context, c models.Contact) (models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.contacts[c.ID]
	if !ok || old.OwnerID != c.OwnerID {
		return models.Contact{}, database.ErrNotFound
	}
	f.contacts[c.ID] = c
	return c, nil
}

func (f *fakeContacts) DeleteContact(_ context.Context, owner string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.contacts[id]
	if !ok || old.OwnerID != owner {
		return database.ErrNotFound
	}
	delete(f.contacts, id)
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []models.TransferEvent
	err    error
}

func (f *fakeEmitter) EmitEvent(_ context.Context, event models.TransferEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeEmitter) Close() error { return nil }

type fakeRates struct{ rate models.ExchangeRate }

func (f fakeRates) Current() models.ExchangeRate { return f.rate }

type fixture struct {
	transfers *fakeTransfers
	contacts  *fakeContacts
	emitter   *fakeEmitter
	handler   *Handler
	router    http.Handler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	tr, err := i18n.New()
	require.NoError(t, err)

	logger := zerolog.Nop()
	f := &fixture{
		transfers: &fakeTransfers{created: true},
		contacts:  newFakeContacts(),
		emitter:   &fakeEmitter{},
	}
	f.handler = &Handler{
		Transfers:  f.transfers,
		Contacts:   f.contacts,
		Emitter:    f.emitter,
		Rates:      fakeRates{rate: models.ExchangeRate{Pair: "IMUA-maoUSDT", Rate: "0.42"}},
		Translator: tr,
		Logger:     &logger,
		now:        func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) },
	}
	router, err := f.handler.Router()
	require.NoError(t, err)
	f.router = router
	return f
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func recordBody(txHash string) string {
	b, _ := json.Marshal(map[string]string{
		"amount":    "1.5",
		"asset":     "maoUSDT",
		"sender":    testSender,
		"recipient": testRecipient,
		"txHash":    txHash,
		"timestamp": "2025-03-03T21:06:07.008Z",
	})
	return string(b)
}

func TestRecordTransfer(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/api/recordTransfer", recordBody(testTxHash))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Transfer recorded successfully", decode(t, rec)["message"])

	require.Len(t, f.transfers.saved, 1)
	saved := f.transfers.saved[0]
	assert.Equal(t, "1.5", saved.Amount)
	assert.Equal(t, models.MaoUSDT, saved.Asset)
	assert.Equal(t, testRecipient, saved.Recipient)
	assert.Equal(t, time.Date(2025, 3, 3, 21, 6, 7, 8_000_000, time.UTC), saved.Timestamp)

	require.Len(t, f.emitter.events, 1)
	assert.NotEmpty(t, f.emitter.events[0].ID)
	assert.Equal(t, testTxHash, f.emitter.events[0].Record.TxHash)
}

func TestRecordTransferDuplicateIsNotEmitted(t *testing.T) {
	f := setup(t)
	f.transfers.created = false

	rec := f.do(http.MethodPost, "/api/recordTransfer", recordBody(testTxHash))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.emitter.events)
}

func TestRecordTransferEmitFailureStillSucceeds(t *testing.T) {
	f := setup(t)
	f.emitter.err = errors.New("broker down")

	rec := f.do(http.MethodPost, "/api/recordTransfer", recordBody(testTxHash))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordTransferRejectsInvalidInput(t *testing.T) {
	f := setup(t)

	for name, body := range map[string]string{
		"not json":     "{",
		"bad tx hash":  recordBody("0x1234"),
		"bad asset":    strings.Replace(recordBody(testTxHash), "maoUSDT", "DOGE", 1),
		"bech32 recip": strings.Replace(recordBody(testTxHash), testRecipient, "imua1j53z9yxawfu250wa8zwvrcw3vhxyhtl9l9v8zy", 1),
		"bad time":     strings.Replace(recordBody(testTxHash), "2025-03-03T21:06:07.008Z", "yesterday", 1),
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/recordTransfer", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid request", decode(t, rec)["error"])
		})
	}
	assert.Empty(t, f.transfers.saved)
}

func TestErrorsAreLocalized(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodPost, "/api/recordTransfer", "{", "Accept-Language", "zh-CN,zh;q=0.9")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "请求无效", decode(t, rec)["error"])
}

func TestRecordTransferStoreFailure(t *testing.T) {
	f := setup(t)
	f.transfers.err = errors.New("db down")

	rec := f.do(http.MethodPost, "/api/recordTransfer", recordBody(testTxHash))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to record transfer", body["error"])
	assert.Equal(t, "db down", body["details"])
	assert.Empty(t, f.emitter.events)
}

func TestTransactions(t *testing.T) {
	f := setup(t)
	f.transfers.page = models.TransferPage{
		Transactions: []models.TransferRecord{{ID: 1, Amount: "2", Asset: models.IMUA, TxHash: testTxHash}},
		Pagination:   models.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: 1},
	}

	rec := f.do(http.MethodGet, "/api/transactions?userAddress="+testSender+"&page=0&limit=500&search=ab&currency=All+Currencies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, models.TransferQuery{
		UserAddress: testSender,
		Search:      "ab",
		Currency:    "All Currencies",
		Page:        1,
		Limit:       100,
	}, f.transfers.query)

	var page models.TransferPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, 1, page.Pagination.TotalItems)
}

func TestTransactionsDefaultsAndEmptyList(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.transfers.query.Page)
	assert.Equal(t, 10, f.transfers.query.Limit)
	assert.Contains(t, rec.Body.String(), `"transactions":[]`)
}

func TestTransactionsStoreFailure(t *testing.T) {
	f := setup(t)
	f.transfers.err = errors.New("timeout")

	rec := f.do(http.MethodGet, "/api/transactions?userAddress="+testSender, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch transactions", decode(t, rec)["error"])
}

func TestContacts(t *testing.T) {
	f := setup(t)
	owner := "?userId=" + testSender

	rec := f.do(http.MethodPost, "/api/contacts"+owner, `{"name":" alice ","address":"`+testRecipient+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Name)

	// Address book entries also accept 64-digit hash-style strings.
	rec = f.do(http.MethodPost, "/api/contacts"+owner, `{"name":"bob","address":"`+strings.Repeat("1", 64)+`"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/contacts"+owner, `{"name":"eve","address":"0x123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/contacts"+owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = f.do(http.MethodPut, "/api/contacts/1"+owner, `{"name":"alice2","address":"`+testRecipient+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice2", f.contacts.contacts[1].Name)

	rec = f.do(http.MethodPut, "/api/contacts/99"+owner, `{"name":"x","address":"`+testRecipient+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Contact not found", decode(t, rec)["error"])

	rec = f.do(http.MethodDelete, "/api/contacts/1?userId=0x2222222222222222222222222222222222222222", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/contacts/1"+owner, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.contacts.contacts, 1)

	rec = f.do(http.MethodDelete, "/api/contacts/abc"+owner, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactsRequireOwner(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "/api/contacts", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRates(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "/api/rates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "IMUA-maoUSDT", body["pair"])
	assert.Equal(t, "0.42", body["rate"])

	f.handler.Rates = nil
	rec = f.do(http.MethodGet, "/api/rates", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := setup(t)
	f.handler.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/rates", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/rates", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "").Code)
}

func TestHealthRoutes(t *testing.T) {
	tr, err := i18n.New()
	require.NoError(t, err)
	logger := zerolog.Nop()
	h := &Handler{
		Transfers:  &fakeTransfers{},
		Contacts:   newFakeContacts(),
		Translator: tr,
		Health:     health.NewChecker(nil, time.Minute, &logger),
		Logger:     &logger,
	}
	router, err := h.Router()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterRequiresStores(t *testing.T) {
	h := &Handler{}
	assert.Error(t, h.RegisterRoutes(nil))

	router, err := h.Router()
	assert.Error(t, err)
	assert.Nil(t, router)
}
