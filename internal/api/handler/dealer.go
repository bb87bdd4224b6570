package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dealersites/internal/api/request"
	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
)

// DomainService manages a dealer's Domain rows.
type DomainService interface {
	EnsurePlatformSubdomain(ctx context.Context, dealerID string) (*model.Domain, bool, error)
	ListByDealer(ctx context.Context, dealerID string) ([]model.Domain, error)
	SetPrimary(ctx context.Context, dealerID, domainID string) error
}

// DealerCreator creates dealer accounts.
type DealerCreator interface {
	Create(ctx context.Context, d *model.Dealer) error
}

var (
	_ DomainService = (*core.DomainService)(nil)
	_ DealerCreator = (*core.DealerService)(nil)
)

type Dealer struct {
	dealers DealerCreator
	domains DomainService
}

func NewDealer(dealers DealerCreator, domains DomainService) *Dealer {
	return &Dealer{dealers: dealers, domains: domains}
}

// CreatedDealer is the response to creating a dealer.
type CreatedDealer struct {
	Dealer    *model.Dealer `json:"dealer"`
	Subdomain *model.Domain `json:"subdomain"`
}

// Create godoc
//
//	@Summary		Create a dealer
//	@Description	Opens a dealer account with a generated slug and its free platform subdomain.
//	@Tags			Dealers
//	@Security		BearerAuth
//	@Param			body body request.CreateDealer true "Dealer details"
//	@Success		201 {object} CreatedDealer
//	@Failure		400 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/dealers [post]
func (h *Dealer) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateDealer
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d := &model.Dealer{Name: req.Name, City: req.City, Email: req.Email}
	if err := h.dealers.Create(r.Context(), d); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub, _, err := h.domains.EnsurePlatformSubdomain(r.Context(), d.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, CreatedDealer{Dealer: d, Subdomain: sub})
}

// EnsureSubdomain godoc
//
//	@Summary		Ensure the free platform subdomain
//	@Description	Gives the dealer their free platform subdomain. It returns 201 the first time and 200 afterwards.
//	@Tags			Dealers
//	@Security		BearerAuth
//	@Param			dealerID path string true "Dealer ID"
//	@Success		200 {object} model.Domain
//	@Success		201 {object} model.Domain
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/dealers/{dealerID}/subdomain [post]
func (h *Dealer) EnsureSubdomain(w http.ResponseWriter, r *http.Request) {
	dealerID, err := request.RequireID(chi.URLParam(r, "dealerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, created, err := h.domains.EnsurePlatformSubdomain(r.Context(), dealerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.WriteJSON(w, status, d)
}

// ListDomains godoc
//
//	@Summary		List a dealer's domains
//	@Tags			Dealers
//	@Security		BearerAuth
//	@Param			dealerID path string true "Dealer ID"
//	@Success		200 {array} model.Domain
//	@Failure		400 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/dealers/{dealerID}/domains [get]
func (h *Dealer) ListDomains(w http.ResponseWriter, r *http.Request) {
	dealerID, err := request.RequireID(chi.URLParam(r, "dealerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	domains, err := h.domains.ListByDealer(r.Context(), dealerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if domains == nil {
		domains = []model.Domain{}
	}
	response.WriteJSON(w, http.StatusOK, domains)
}

// SetPrimary godoc
//
//	@Summary		Make a domain primary
//	@Tags			Dealers
//	@Security		BearerAuth
//	@Param			dealerID path string true "Dealer ID"
//	@Param			id path string true "Domain ID"
//	@Success		204
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/dealers/{dealerID}/domains/{id}/primary [put]
func (h *Dealer) SetPrimary(w http.ResponseWriter, r *http.Request) {
	dealerID, err := request.RequireID(chi.URLParam(r, "dealerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	domainID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.domains.SetPrimary(r.Context(), dealerID, domainID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
