package adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// LocationAdapter answers address requests with the configured business
// address. Params may override it per template.
type LocationAdapter struct {
	cfg config.LocationConfig
	log *logging.Logger
}

// NewLocationAdapter creates the location adapter.
func NewLocationAdapter(cfg config.LocationConfig, log *logging.Logger) *LocationAdapter {
	return &LocationAdapter{cfg: cfg, log: log.Sub("action.location")}
}

// Name implements Adapter.
func (a *LocationAdapter) Name() string { return "location" }

// Perform implements Adapter. The outcome carries the address and a maps
// link so dependent steps (e.g. a follow-up email) can embed them.
func (a *LocationAdapter) Perform(_ context.Context, inv Invocation) (domain.Outcome, error) {
	address := inv.Param("address", a.cfg.DefaultAddress)
	if address == "" {
		return domain.Outcome{}, Terminalf("location", fmt.Errorf("no address: set params.address or adapters.location.defaultAddress"))
	}

	a.log.Debug().Str("event", inv.Event.ID).Msg("address resolved")
	return domain.Outcome{Data: map[string]any{
		"address": address,
		"mapsUrl": "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(address),
	}}, nil
}
