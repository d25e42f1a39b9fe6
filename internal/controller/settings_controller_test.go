package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsList_MasksSecrets(t *testing.T) {
	store := testutil.NewMockSettingsStore(map[string]string{
		settings.KeyActiveProcessor: "card",
		settings.KeyStripeSecretKey: "sk_live_abc",
		settings.KeyCurrency:        "usd",
	})
	h := NewSettingsController(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Settings map[string]string `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "card", resp.Settings[settings.KeyActiveProcessor])
	assert.Equal(t, "usd", resp.Settings[settings.KeyCurrency])
	assert.Equal(t, "********", resp.Settings[settings.KeyStripeSecretKey])
}

func TestSettingsUpdate_WritesBatch(t *testing.T) {
	store := testutil.NewMockSettingsStore(nil)
	h := NewSettingsController(store)

	body, _ := json.Marshal(map[string]any{
		"settings": map[string]string{
			settings.KeyActiveProcessor: "wallet",
			settings.KeyCurrency:        "eur",
		},
	})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Update(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.Get(context.Background(), settings.KeyActiveProcessor)
	require.NoError(t, err)
	assert.Equal(t, "wallet", got)
}

func TestSettingsUpdate_RejectsEmptyBatch(t *testing.T) {
	h := NewSettingsController(testutil.NewMockSettingsStore(nil))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", bytes.NewReader([]byte(`{"settings":{}}`)))
	w := httptest.NewRecorder()
	h.Update(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
