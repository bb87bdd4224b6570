package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dealersites/internal/api/request"
	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/route"
)

// OnboardingService is the onboarding pipeline as seen by the API.
type OnboardingService interface {
	Create(ctx context.Context, dealerID, domain string) (*model.DomainOnboarding, error)
	Get(ctx context.Context, id string) (*model.DomainOnboarding, error)
	Analyze(ctx context.Context, id string) (*model.DomainOnboarding, error)
	SelectRoute(ctx context.Context, id string, sel route.Selection) (*model.DomainOnboarding, error)
	Configure(ctx context.Context, id string) (*dnsconfig.Instructions, *model.DomainOnboarding, error)
	PropagationStatus(ctx context.Context, id string) (model.PropagationStatus, error)
	CheckPropagation(ctx context.Context, id string) (model.PropagationStatus, error)
	StartAutoCheck(ctx context.Context, id string) (*model.DomainOnboarding, error)
	StopAutoCheck(ctx context.Context, id string) (*model.DomainOnboarding, error)
	StartDeploy(ctx context.Context, id, ref string) (string, error)
}

var _ OnboardingService = (*core.OnboardingService)(nil)

type Onboarding struct {
	svc OnboardingService
}

func NewOnboarding(svc OnboardingService) *Onboarding {
	return &Onboarding{svc: svc}
}

// Create godoc
//
//	@Summary		Start a domain onboarding
//	@Description	Registers a domain for a dealer and runs the first DNS analysis.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			dealerID path string true "Dealer ID"
//	@Param			body body request.CreateOnboarding true "Domain to onboard"
//	@Success		201 {object} model.DomainOnboarding
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/dealers/{dealerID}/onboardings [post]
func (h *Onboarding) Create(w http.ResponseWriter, r *http.Request) {
	dealerID, err := request.RequireID(chi.URLParam(r, "dealerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.CreateOnboarding
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.Create(r.Context(), dealerID, req.Domain)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, o)
}

// Get godoc
//
//	@Summary		Get an onboarding
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} model.DomainOnboarding
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Router			/onboardings/{id} [get]
func (h *Onboarding) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, o)
}

// Analyze godoc
//
//	@Summary		Re-run DNS analysis
//	@Description	Re-runs DNS analysis and stores a fresh snapshot.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} model.DomainOnboarding
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/onboardings/{id}/analyze [post]
func (h *Onboarding) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.svc.Analyze(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, o)
}

// SelectRoute godoc
//
//	@Summary		Select the routing option
//	@Description	Both fields are optional; an empty body accepts the recommended route.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Param			body body request.SelectRoute false "Route override"
//	@Success		200 {object} model.DomainOnboarding
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Router			/onboardings/{id}/route [post]
func (h *Onboarding) SelectRoute(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.SelectRoute
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.SelectRoute(r.Context(), id, route.Selection{Route: req.Route, SubdomainName: req.SubdomainName})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, o)
}

// Configure godoc
//
//	@Summary		Generate DNS instructions
//	@Description	Generates the DNS instructions for the selected route.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} map[string]interface{} "instructions and onboarding"
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		502 {object} response.ErrorBody
//	@Router			/onboardings/{id}/configuration [post]
func (h *Onboarding) Configure(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	instructions, o, err := h.svc.Configure(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"instructions": instructions,
		"onboarding":   o,
	})
}

// Propagation godoc
//
//	@Summary		Get stored propagation status
//	@Description	Reports stored evidence without resolving anything.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} model.PropagationStatus
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Router			/onboardings/{id}/propagation [get]
func (h *Onboarding) Propagation(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.PropagationStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// CheckPropagation godoc
//
//	@Summary		Check DNS propagation now
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} model.PropagationStatus
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/onboardings/{id}/propagation/check [post]
func (h *Onboarding) CheckPropagation(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.CheckPropagation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// StartAutoCheck godoc
//
//	@Summary		Start background propagation checks
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		202 {object} model.AutoCheck
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/onboardings/{id}/propagation/auto [post]
func (h *Onboarding) StartAutoCheck(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.svc.StartAutoCheck(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, o.AutoCheck)
}

// StopAutoCheck godoc
//
//	@Summary		Stop background propagation checks
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		200 {object} model.AutoCheck
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/onboardings/{id}/propagation/auto [delete]
func (h *Onboarding) StopAutoCheck(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.svc.StopAutoCheck(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, o.AutoCheck)
}

// Deploy godoc
//
//	@Summary		Deploy the dealer site
//	@Description	Starts the site deployment. It is accepted only once DNS is verified; calling it again returns the same workflow.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Param			body body request.StartDeploy false "Git ref to deploy"
//	@Success		202 {object} map[string]string
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Failure		409 {object} response.ErrorBody
//	@Failure		500 {object} response.ErrorBody
//	@Router			/onboardings/{id}/deploy [post]
func (h *Onboarding) Deploy(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.StartDeploy
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflowID, err := h.svc.StartDeploy(r.Context(), id, req.Ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"workflow_id": workflowID})
}
