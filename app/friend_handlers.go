package campuslink

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campuslink/campuslink/core"
)

type FriendHandler struct {
	store core.FriendStore
}

func NewFriendHandler(store core.FriendStore) *FriendHandler {
	return &FriendHandler{store: store}
}

func (h *FriendHandler) GetFriendsHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	friends, err := h.store.Friends(r.Context(), nickname)
	if err != nil {
		return fmt.Errorf("Friends: %w", err)
	}
	if friends == nil {
		friends = []string{}
	}
	json.NewEncoder(w).Encode(friends)
	return nil
}

type AddFriendPayload struct {
	Nickname string `json:"nickname" validate:"required"`
}

func (h *FriendHandler) AddFriendHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)

	var payload AddFriendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid input")
	}
	defer r.Body.Close()
	if err := validate.Struct(&payload); err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid input")
	}
	if payload.Nickname == nickname {
		return NewJsonError(http.StatusBadRequest, "cannot befriend self")
	}

	if err := h.store.AddFriendship(r.Context(), nickname, payload.Nickname); err != nil {
		return fmt.Errorf("AddFriendship: %w", err)
	}
	w.WriteHeader(http.StatusCreated)
	return nil
}

func (h *FriendHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	other := r.PathValue("nickname")
	if other == "" {
		return NewJsonError(http.StatusBadRequest, "invalid input")
	}
	if err := h.store.RemoveFriendship(r.Context(), nickname, other); err != nil {
		return fmt.Errorf("RemoveFriendship: %w", err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
