package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/api/request"
	"github.com/edvin/dealersites/internal/api/response"
	"github.com/edvin/dealersites/internal/model"
)

// PropagationReader reads stored propagation evidence.
type PropagationReader interface {
	PropagationStatus(ctx context.Context, id string) (model.PropagationStatus, error)
}

// PropagationStream pushes the propagation status to a websocket client
// every interval until the domain is fully propagated or the client leaves.
type PropagationStream struct {
	svc      PropagationReader
	interval time.Duration
}

func NewPropagationStream(svc PropagationReader, interval time.Duration) *PropagationStream {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PropagationStream{svc: svc, interval: interval}
}

// Stream godoc
//
//	@Summary		Stream propagation status over a websocket
//	@Description	Pushes the propagation status until the domain is fully propagated or the client disconnects.
//	@Tags			Onboardings
//	@Security		BearerAuth
//	@Param			id path string true "Onboarding ID"
//	@Success		101
//	@Failure		400 {object} response.ErrorBody
//	@Failure		404 {object} response.ErrorBody
//	@Router			/onboardings/{id}/propagation/stream [get]
func (h *PropagationStream) Stream(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Errors before the upgrade are plain HTTP responses.
	st, err := h.svc.PropagationStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // The wizard is served from a different origin.
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	// The client never sends; CloseRead handles its close frame.
	ctx := ws.CloseRead(r.Context())
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := wsjson.Write(ctx, ws, st); err != nil {
			return
		}
		if st.Overall.FullyPropagated {
			ws.Close(websocket.StatusNormalClosure, "fully propagated")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err = h.svc.PropagationStatus(ctx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("onboarding_id", id).Msg("propagation stream read failed")
				ws.Close(websocket.StatusInternalError, "status unavailable")
			}
			return
		}
	}
}
