package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/platform"
	"github.com/edvin/dealersites/internal/registrar"
)

// writeServiceError maps a service error onto a status code. Upstream API
// errors keep their raw message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *platform.ValidationError
		hostingErr    *hosting.APIError
		registrarErr  *registrar.APIError
	)
	switch {
	case errors.As(err, &validationErr):
		response.WriteErrorCode(w, http.StatusBadRequest, "invalid_"+validationErr.Field, err.Error())
	case errors.Is(err, core.ErrNotFound):
		response.WriteErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrIllegalTransition):
		response.WriteErrorCode(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, core.ErrConflict):
		response.WriteErrorCode(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, registrar.ErrDomainUnavailable):
		response.WriteErrorCode(w, http.StatusUnprocessableEntity, "domain_unavailable", err.Error())
	case registrar.Rejected(err):
		response.WriteErrorCode(w, http.StatusUnprocessableEntity, "registration_rejected", err.Error())
	case errors.Is(err, core.ErrRegistrationDisabled):
		response.WriteErrorCode(w, http.StatusServiceUnavailable, "registration_disabled", err.Error())
	case errors.As(err, &hostingErr), errors.As(err, &registrarErr):
		response.WriteErrorCode(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
