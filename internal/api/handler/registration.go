package handler

import (
	"context"
	"net/http"

	"github.com/edvin/dealersites/internal/api/request"
	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/registrar"
)

// DomainSearcher checks candidate domains across the configured TLDs.
type DomainSearcher interface {
	Search(ctx context.Context, input string) ([]registrar.SearchResult, error)
}

// DomainRegistrar purchases a domain for a dealer.
type DomainRegistrar interface {
	Register(ctx context.Context, req core.RegistrationRequest) (*model.Domain, *registrar.Order, error)
}

var (
	_ DomainSearcher  = (*registrar.Service)(nil)
	_ DomainRegistrar = (*core.RegistrationService)(nil)
)

type Registration struct {
	search   DomainSearcher
	register DomainRegistrar
}

// NewRegistration takes a nil searcher when no registrar is configured.
func NewRegistration(search DomainSearcher, register DomainRegistrar) *Registration {
	return &Registration{search: search, register: register}
}

// Search godoc
//
//	@Summary		Search available domains
//	@Description	Returns availability and price for the name under each TLD.
//	@Tags			Registration
//	@Security		BearerAuth
//	@Param			name query string true "Name to search"
//	@Success		200 {array} registrar.SearchResult
//	@Failure		400 {object} response.ErrorBody
//	@Failure		502 {object} response.ErrorBody
//	@Failure		503 {object} response.ErrorBody
//	@Router			/domain-search [get]
func (h *Registration) Search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		response.WriteError(w, http.StatusBadRequest, "missing required query parameter: name")
		return
	}
	if h.search == nil {
		writeServiceError(w, r, core.ErrRegistrationDisabled)
		return
	}
	results, err := h.search.Search(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, results)
}

// Register godoc
//
//	@Summary		Register a domain for a dealer
//	@Tags			Registration
//	@Security		BearerAuth
//	@Param			body body request.RegisterDomain true "Registration details"
//	@Success		201 {object} map[string]interface{} "domain and order"
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		422 {object} response.ErrorBody
//	@Failure		502 {object} response.ErrorBody
//	@Failure		503 {object} response.ErrorBody
//	@Router			/domain-registrations [post]
func (h *Registration) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterDomain
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, order, err := h.register.Register(r.Context(), core.RegistrationRequest{
		DealerID:     req.DealerID,
		Domain:       req.Domain,
		Contact:      req.Contact,
		OnboardingID: req.OnboardingID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"domain": d,
		"order":  order,
	})
}
