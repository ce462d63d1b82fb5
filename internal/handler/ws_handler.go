package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"groupmatch/internal/app/chat"
	"groupmatch/internal/pkg/logx"
)

// HandleWebSocket upgrades the request and runs the client's pumps. Rate limiting
// happens in middleware.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, deps.Gateway)

		go client.WritePump()

		logx.Info("WebSocket connection established", "session_id", client.ID, "remote_ip", logx.AnonymizeIP(r.RemoteAddr))

		deps.Hub.Register(client)

		client.ReadPump()
	}
}
