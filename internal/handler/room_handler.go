/*
Package handler provides read-only HTTP projections of rooms and matchmaking buckets.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupmatch/internal/app/room"
	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/resp"
)

func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if customErr, ok := errs.As(err); ok {
		resp.RespondError(w, r, customErr)
		return
	}
	logx.Error(err, "Room store lookup failed", "path", r.URL.Path)
	resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
}

// HandleListRooms returns every room.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := deps.Rooms.List(r.Context())
		if err != nil {
			respondStoreError(w, r, err)
			return
		}

		views := make([]room.View, 0, len(rooms))
		for _, rm := range rooms {
			views = append(views, rm.View())
		}
		resp.RespondSuccess(w, r, views)
	}
}

// HandleGetRoom returns the room named by the {room} path parameter.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := deps.Rooms.GetByName(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, rm.View())
	}
}

// HandleGetRoomByUser returns the room the {userId} path parameter belongs to.
func HandleGetRoomByUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := deps.Rooms.GetByUserID(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, rm.View())
	}
}

// HandleListQueues returns the waiting buckets in creation order.
func HandleListQueues(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Manager.Queues())
	}
}
