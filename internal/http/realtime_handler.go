package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"oba-connect/internal/realtime"
	"oba-connect/internal/service"
)

// RealtimeHandler expone el canal de notificaciones por sala.
type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Subscribe maneja GET /ws/:room.
// Las salas "user:<id>" son privadas: solo el propio usuario puede unirse.
// El resto de salas (comunidades, eventos) son publicas.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	room := strings.TrimSpace(c.Param("room"))
	if room == "" {
		fail(c, http.StatusBadRequest, CodeValidation, "room is required")
		return
	}
	if owner, private := strings.CutPrefix(room, "user:"); private {
		sess, ok := GetAuthSession(c)
		if !ok || sess.ID != owner {
			failErr(c, service.ErrUnauthenticated)
			return
		}
	}
	h.hub.Serve(c.Writer, c.Request, room)
}
