package controller

import (
	"net/http"
	"strings"

	"github.com/cassiomorais/memberpay/internal/domain/settings"
)

// secret-bearing settings are masked when listed
var secretSuffixes = []string{
	"_secret_key", "_webhook_secret", "_client_secret", "_access_token",
}

// SettingsController exposes the settings store for admin tooling. Credential
// values are write-only: reads return a masked placeholder.
type SettingsController struct {
	store settings.Store
}

// NewSettingsController creates a new SettingsController.
func NewSettingsController(store settings.Store) *SettingsController {
	return &SettingsController{store: store}
}

// List handles GET /api/v1/admin/settings
func (h *SettingsController) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	for k, v := range all {
		if v != "" && isSecretKey(k) {
			all[k] = "********"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": all})
}

// Update handles PUT /api/v1/admin/settings
func (h *SettingsController) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	for k, v := range req.Settings {
		if err := h.store.Set(r.Context(), k, v); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func isSecretKey(key string) bool {
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}
