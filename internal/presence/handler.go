package presence

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// maxFrameBytes caps a single inbound frame.
const maxFrameBytes = 8 << 10

// Handler upgrades GET requests to websocket connections served by the
// hub.  An empty allowedOrigins accepts every origin.
func (h *Hub) Handler(allowedOrigins []string) echo.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}

	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			h.log.Warn("ws_upgrade_failed", "err", err, "remote", c.RealIP())
			return nil
		}
		conn.SetReadLimit(maxFrameBytes)
		h.Serve(c.Request().Context(), conn)
		return nil
	}
}
