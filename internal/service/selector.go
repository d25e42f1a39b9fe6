package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
)

// ProcessorSelector resolves which payment processor is currently active.
//
// The explicit setting wins: when payment_active_processor holds a valid
// processor kind that kind is used, and the literal value "none" disables
// payments outright, skipping the fallback scan. When the setting is absent
// the enabled flags are scanned in a fixed priority order so installs that
// predate the setting keep working.
type ProcessorSelector struct {
	settings settings.Store
}

// NewProcessorSelector creates a ProcessorSelector backed by the given store.
func NewProcessorSelector(store settings.Store) *ProcessorSelector {
	return &ProcessorSelector{settings: store}
}

// fallback scan order, highest priority first
var fallbackScan = []struct {
	flag string
	kind processor.Kind
}{
	{settings.KeyStripeEnabled, processor.KindCard},
	{settings.KeyPayPalEnabled, processor.KindWallet},
	{settings.KeySquareEnabled, processor.KindLinkBased},
}

// Active returns the active processor kind. The second return is false when
// no processor is configured, either explicitly ("none") or because no
// enabled flag is set.
func (s *ProcessorSelector) Active(ctx context.Context) (processor.Kind, bool, error) {
	raw, err := s.settings.Get(ctx, settings.KeyActiveProcessor)
	switch {
	case err == nil:
		if raw == processor.ActiveNone {
			return "", false, nil
		}
		kind, ok := processor.ParseKind(raw)
		if !ok {
			return "", false, fmt.Errorf("unrecognized active processor %q", raw)
		}
		return kind, true, nil
	case !errors.Is(err, settings.ErrNotFound):
		return "", false, err
	}

	for _, cand := range fallbackScan {
		enabled, err := s.settings.Get(ctx, cand.flag)
		if err != nil {
			if errors.Is(err, settings.ErrNotFound) {
				continue
			}
			return "", false, err
		}
		if enabled == "true" || enabled == "1" {
			return cand.kind, true, nil
		}
	}

	return "", false, nil
}
