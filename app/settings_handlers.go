package campuslink

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campuslink/campuslink/core"
)

type SettingsHandler struct {
	store core.SettingsStore
}

func NewSettingsHandler(store core.SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

type LocationSettingPayload struct {
	LocationVisibility core.Visibility `json:"locationVisibility" validate:"required"`
}

func (h *SettingsHandler) GetLocationSettingHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	v, err := h.store.LocationVisibility(r.Context(), nickname)
	if err != nil {
		return fmt.Errorf("LocationVisibility: %w", err)
	}
	json.NewEncoder(w).Encode(LocationSettingPayload{LocationVisibility: v})
	return nil
}

func (h *SettingsHandler) PutLocationSettingHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)

	var payload LocationSettingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid input")
	}
	defer r.Body.Close()
	if !payload.LocationVisibility.Valid() {
		return NewJsonError(http.StatusBadRequest, "locationVisibility must be one of all, friends, none")
	}

	if err := h.store.SetLocationVisibility(r.Context(), nickname, payload.LocationVisibility); err != nil {
		return fmt.Errorf("SetLocationVisibility: %w", err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
