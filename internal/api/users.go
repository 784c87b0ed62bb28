package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/store"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

type welcome struct {
	Message string `json:"message"`
}

func (a *API) root(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "root called")
	apierr.WriteJSON(w, http.StatusOK, welcome{Message: "Welcome to " + a.appName})
	return nil
}

type appInfo struct {
	AppName       string `json:"app_name"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (a *API) info(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	uptime := int64(a.now().Sub(a.started).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	log.FromContext(ctx).Info(ctx, "info requested", "uptime_seconds", uptime)
	apierr.WriteJSON(w, http.StatusOK, appInfo{
		AppName:       a.appName,
		Version:       a.appVersion,
		Environment:   a.appEnv,
		UptimeSeconds: uptime,
	})
	return nil
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	users, err := a.users.List(ctx)
	if err != nil {
		return xerrors.Wrap(err, "list users")
	}
	if users == nil {
		users = []store.User{}
	}
	log.FromContext(ctx).Info(ctx, "get users", "active_users", len(users))
	apierr.WriteJSON(w, http.StatusOK, users)
	return nil
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	L := log.FromContext(ctx)

	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return apierr.NewValidation(apierr.FieldError{
			Field:   "id",
			Message: "must be an integer",
		})
	}

	L.Info(ctx, "get user", "user_id", id)
	u, err := a.users.Get(ctx, id)
	if errors.Is(err, store.ErrUserNotFound) {
		L.Warn(ctx, "user not found", "user_id", id)
		return apierr.NewNotFound("User not found")
	}
	if err != nil {
		return xerrors.Wrapf(err, "get user %d", id)
	}
	apierr.WriteJSON(w, http.StatusOK, u)
	return nil
}
