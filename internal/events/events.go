package events

import (
	"context"
	"monallopay/internal/interfaces"
	"monallopay/internal/metrics"
	"monallopay/internal/models"
	"strings"

	"github.com/rs/zerolog"
)

var _ interfaces.EventEmitter = (*LogEmitter)(nil)

// LogEmitter logs every transfer event and forwards it to the wrapped
// emitter, if any.
type LogEmitter struct {
	WrappedEmitter  interfaces.EventEmitter
	ExplorerBaseURL string
	Logger          *zerolog.Logger
}

// EmitEvent logs the stored record and forwards to the wrapped emitter
func (d *LogEmitter) EmitEvent(ctx context.Context, event models.TransferEvent) error {
	rec := event.Record
	d.Logger.Info().
		Str("eventId", event.ID).
		Int64("id", rec.ID).
		Str("asset", rec.Asset.String()).
		Str("amount", rec.Amount).
		Str("sender", rec.Sender).
		Str("recipient", rec.Recipient).
		Str("txHash", rec.TxHash).
		Time("timestamp", rec.Timestamp).
		Str("explorer", ExplorerURL(d.ExplorerBaseURL, rec.TxHash)).
		Msg("Transfer recorded")

	if d.WrappedEmitter == nil {
		metrics.EventsEmitted.WithLabelValues("logged").Inc()
		return nil
	}
	if err := d.WrappedEmitter.EmitEvent(ctx, event); err != nil {
		metrics.EventsEmitted.WithLabelValues("error").Inc()
		return err
	}
	metrics.EventsEmitted.WithLabelValues("forwarded").Inc()
	return nil
}

func (d *LogEmitter) Close() error {
	if d.WrappedEmitter != nil {
		return d.WrappedEmitter.Close()
	}
	return nil
}

// ExplorerURL links txHash on the block explorer.
func ExplorerURL(base, txHash string) string {
	if base == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + txHash
}
