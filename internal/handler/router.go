/*
Package handler provides the HTTP handlers and routing setup for the matchmaking server.

This file defines the main Router, applying logging, CORS and IP-based rate limiting
before delegating to the read-only room API and the websocket endpoint.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"groupmatch/internal/pkg/limiter"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/resp"
)

// Router sets up the chi routing table for the application.
func Router(deps *AppDeps) http.Handler {
	upgradeLimiter := limiter.New(rate.Limit(deps.Config.UpgradeRate), deps.Config.UpgradeBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":   "ok",
			"service":  "groupmatch",
			"sessions": deps.Hub.Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/rooms", HandleListRooms(deps))
		api.Get("/rooms/{room}", HandleGetRoom(deps))
		api.Get("/rooms/by/{userId}", HandleGetRoomByUser(deps))
		api.Get("/queues", HandleListQueues(deps))
	})

	r.With(upgradeLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
