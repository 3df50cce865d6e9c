package campuslink

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campuslink/campuslink/core"
)

// ChatHandler is the REST read path next to the live channel: clients load
// the transcript here before opening the websocket, and the room list screen
// polls the summaries.
type ChatHandler struct {
	coordinator *core.Coordinator
	store       core.ChatStore
}

func NewChatHandler(coordinator *core.Coordinator, store core.ChatStore) *ChatHandler {
	return &ChatHandler{coordinator: coordinator, store: store}
}

type TranscriptResponse struct {
	RoomKey  string         `json:"roomKey"`
	Messages []core.Message `json:"messages"`
}

func (h *ChatHandler) GetTranscriptHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	roomKey := r.PathValue("roomKey")

	parts, err := core.ParseRoomKey(roomKey)
	if err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid room key")
	}
	if nickname != parts[0] && nickname != parts[1] {
		return NewJsonError(http.StatusForbidden, "not a room participant")
	}

	messages, err := h.coordinator.Transcript(r.Context(), roomKey)
	if err != nil {
		return fmt.Errorf("Transcript: %w", err)
	}
	if messages == nil {
		messages = []core.Message{}
	}

	json.NewEncoder(w).Encode(TranscriptResponse{RoomKey: roomKey, Messages: messages})
	return nil
}

func (h *ChatHandler) GetMyRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	summaries, err := h.store.RoomSummaries(r.Context(), nickname)
	if err != nil {
		return fmt.Errorf("RoomSummaries: %w", err)
	}
	if summaries == nil {
		summaries = []core.RoomSummary{}
	}
	json.NewEncoder(w).Encode(summaries)
	return nil
}

type MarkReadResponse struct {
	RoomKey         string `json:"roomKey"`
	LastReadMessage int64  `json:"lastReadMessage"`
}

func (h *ChatHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) error {
	nickname := NicknameFromRequest(r)
	roomKey := r.PathValue("roomKey")

	parts, err := core.ParseRoomKey(roomKey)
	if err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid room key")
	}
	if nickname != parts[0] && nickname != parts[1] {
		return NewJsonError(http.StatusForbidden, "not a room participant")
	}

	last, err := h.store.MarkRead(r.Context(), roomKey, nickname)
	if err != nil {
		return fmt.Errorf("MarkRead: %w", err)
	}
	json.NewEncoder(w).Encode(MarkReadResponse{RoomKey: roomKey, LastReadMessage: last})
	return nil
}
