package adapter

import (
	"context"
	"time"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// InvoiceLine is one billable entry derived from a call's consumption.
type InvoiceLine struct {
	AgentID  string
	EventID  string
	Credits  float64
	Amount   float64
	Currency string
	At       time.Time
}

// InvoiceRecorder persists invoice lines. Implemented by the store.
type InvoiceRecorder interface {
	RecordInvoiceLine(ctx context.Context, line InvoiceLine) error
}

// BillingAdapter converts call consumption into invoice lines at the
// configured credit rate.
type BillingAdapter struct {
	recorder InvoiceRecorder
	cfg      config.BillingConfig
	log      *logging.Logger
}

// NewBillingAdapter creates the billing adapter.
func NewBillingAdapter(recorder InvoiceRecorder, cfg config.BillingConfig, log *logging.Logger) *BillingAdapter {
	return &BillingAdapter{recorder: recorder, cfg: cfg, log: log.Sub("action.billing")}
}

// Name implements Adapter.
func (a *BillingAdapter) Name() string { return "billing" }

// Perform implements Adapter. Credits come from the event payload, or
// from a completed analytics step when this step depends on one.
func (a *BillingAdapter) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	credits := floatPayload(inv.Event.Payload, "credits", "cost")
	for _, out := range inv.Results {
		if v, ok := out.Data["credits"].(float64); ok && v > 0 {
			credits = v
		}
	}

	currency := a.cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	line := InvoiceLine{
		AgentID:  inv.Event.AgentID,
		EventID:  inv.Event.ID,
		Credits:  credits,
		Amount:   credits * a.cfg.USDPerCredit,
		Currency: currency,
		At:       inv.Event.ReceivedAt,
	}
	if err := a.recorder.RecordInvoiceLine(ctx, line); err != nil {
		return domain.Outcome{}, Classify("billing", err)
	}

	a.log.Debug().
		Str("event", inv.Event.ID).
		Float64("amount", line.Amount).
		Str("currency", currency).
		Msg("invoice line recorded")
	return domain.Outcome{Data: map[string]any{
		"credits":  credits,
		"amount":   line.Amount,
		"currency": currency,
	}}, nil
}
