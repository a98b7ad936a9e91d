package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/presence"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// RoomHandlers provides HTTP handlers for room discovery endpoints.
// Room creation and deletion happen over the WebSocket protocol; REST
// only exposes the listing.
type RoomHandlers struct {
	store   store.Store
	tracker *presence.Tracker
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, tracker *presence.Tracker, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store:   st,
		tracker: tracker,
		log:     logger,
	}
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	CreatorID   int64  `json:"creator_id"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
}

// ListRooms handles listing active rooms with live member counts.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListActiveRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, RoomResponse{
			ID:          room.ID,
			Name:        room.Name,
			CreatorID:   room.CreatorID,
			MemberCount: len(h.tracker.MembersOf(room.ID)),
			CreatedAt:   room.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}
