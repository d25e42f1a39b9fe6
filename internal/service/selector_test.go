package service

import (
	"context"
	"testing"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_ExplicitSetting(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantKind processor.Kind
		wantOK   bool
	}{
		{"card", "card", processor.KindCard, true},
		{"wallet", "wallet", processor.KindWallet, true},
		{"linkbased", "linkbased", processor.KindLinkBased, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockSettingsStore(map[string]string{
				settings.KeyActiveProcessor: tt.value,
			})
			sel := NewProcessorSelector(store)

			kind, ok, err := sel.Active(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestSelector_ExplicitNoneShortCircuitsFallback(t *testing.T) {
	// All flags set, but "none" must win over every one of them.
	store := testutil.NewMockSettingsStore(map[string]string{
		settings.KeyActiveProcessor: "none",
		settings.KeyStripeEnabled:   "true",
		settings.KeyPayPalEnabled:   "true",
		settings.KeySquareEnabled:   "true",
	})
	sel := NewProcessorSelector(store)

	_, ok, err := sel.Active(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelector_UnknownValueIsAnError(t *testing.T) {
	store := testutil.NewMockSettingsStore(map[string]string{
		settings.KeyActiveProcessor: "bitcoin",
	})
	sel := NewProcessorSelector(store)

	_, _, err := sel.Active(context.Background())
	assert.Error(t, err)
}

func TestSelector_FallbackScan(t *testing.T) {
	tests := []struct {
		name     string
		values   map[string]string
		wantKind processor.Kind
		wantOK   bool
	}{
		{
			name:     "paypal enabled resolves to wallet",
			values:   map[string]string{settings.KeyPayPalEnabled: "true"},
			wantKind: processor.KindWallet,
			wantOK:   true,
		},
		{
			name:     "square enabled resolves to linkbased",
			values:   map[string]string{settings.KeySquareEnabled: "true"},
			wantKind: processor.KindLinkBased,
			wantOK:   true,
		},
		{
			name: "card beats wallet when both enabled",
			values: map[string]string{
				settings.KeyStripeEnabled: "true",
				settings.KeyPayPalEnabled: "true",
			},
			wantKind: processor.KindCard,
			wantOK:   true,
		},
		{
			name: "wallet beats linkbased when both enabled",
			values: map[string]string{
				settings.KeyPayPalEnabled: "true",
				settings.KeySquareEnabled: "true",
			},
			wantKind: processor.KindWallet,
			wantOK:   true,
		},
		{
			name:   "disabled flags resolve to nothing",
			values: map[string]string{settings.KeyStripeEnabled: "false"},
			wantOK: false,
		},
		{
			name:   "empty store resolves to nothing",
			values: map[string]string{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := NewProcessorSelector(testutil.NewMockSettingsStore(tt.values))

			kind, ok, err := sel.Active(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantKind, kind)
			}
		})
	}
}
