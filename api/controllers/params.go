package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/api/middleware"
	"github.com/angelmondragon/bidhaven-backend/api/responses"
	"github.com/angelmondragon/bidhaven-backend/api/validators"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
)

// reply is what an endpoint renders on success.
type reply struct {
	status int
	body   any
}

func ok(body any) reply      { return reply{status: http.StatusOK, body: body} }
func created(body any) reply { return reply{status: http.StatusCreated, body: body} }

// endpoint renders fn's reply, or its error through the standard envelope.
// A missing dependency answers 500 without calling fn.
func endpoint(name string, ready bool, logg *logger.Logger, fn func(r *http.Request) (reply, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
			return
		}
		out, err := fn(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, out.status, out.body)
	}
}

// authed resolves the caller before handing over to fn.
func authed(fn func(r *http.Request, caller uuid.UUID) (reply, error)) func(*http.Request) (reply, error) {
	return func(r *http.Request) (reply, error) {
		caller, err := requireCaller(r)
		if err != nil {
			return reply{}, err
		}
		return fn(r, caller)
	}
}

func requireCaller(r *http.Request) (uuid.UUID, error) {
	id, found := middleware.CallerID(r.Context())
	if !found {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// pageParams reads limit and cursor from the query string.
func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}
