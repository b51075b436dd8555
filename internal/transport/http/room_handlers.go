package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/core"
)

// RoomHandlers exposes a read-only view of the session directory.
type RoomHandlers struct {
	dir *core.Directory
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(dir *core.Directory, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		dir: dir,
		log: logger,
	}
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// RoomsResponse lists rooms alongside the number of registered clients.
type RoomsResponse struct {
	Rooms   []RoomResponse `json:"rooms"`
	Clients int            `json:"clients"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListRooms handles listing known rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms := h.dir.Rooms()
	resp := RoomsResponse{
		Rooms:   make([]RoomResponse, 0, len(rooms)),
		Clients: h.dir.Clients(),
	}
	for _, room := range rooms {
		resp.Rooms = append(resp.Rooms, RoomResponse(room))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRoom returns a single room by name.
// GET /api/rooms/:name
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	name := c.Param("name")
	for _, room := range h.dir.Rooms() {
		if room.Name == name {
			c.JSON(http.StatusOK, RoomResponse(room))
			return
		}
	}
	if h.log != nil {
		h.log.Debug().Str("room", name).Msg("room not found")
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
}
