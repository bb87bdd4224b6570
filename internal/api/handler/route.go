package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/routecache"
)

// RouteLookup resolves a request host to the dealer slug that serves it.
type RouteLookup interface {
	Lookup(ctx context.Context, host string) (string, error)
}

type Route struct {
	routes RouteLookup
}

func NewRoute(routes RouteLookup) *Route {
	return &Route{routes: routes}
}

// Lookup godoc
//
//	@Summary		Resolve a host to a dealer slug
//	@Tags			Routing
//	@Security		BearerAuth
//	@Param			host query string true "Request host"
//	@Success		200 {object} map[string]string
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/route [get]
func (h *Route) Lookup(w http.ResponseWriter, r *http.Request) {
	host := routecache.NormalizeHost(r.URL.Query().Get("host"))
	if host == "" {
		response.WriteError(w, http.StatusBadRequest, "missing required query parameter: host")
		return
	}
	slug, err := h.routes.Lookup(r.Context(), host)
	if errors.Is(err, routecache.ErrUnknownHost) {
		response.WriteErrorCode(w, http.StatusNotFound, "unknown_host", "no dealer site for "+host)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"host": host, "slug": slug})
}
