package handler

import (
	"groupmatch/internal/app/chat"
	"groupmatch/internal/app/matchmaking"
	"groupmatch/internal/app/room"
	"groupmatch/internal/configs"
)

// AppDeps is everything the HTTP layer needs.
type AppDeps struct {
	Config  *configs.AppConfig
	Hub     *chat.Hub
	Gateway *chat.Gateway
	Manager *matchmaking.Manager
	Rooms   *room.Registry
}
