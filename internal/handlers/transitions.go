package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/pkg/response"
)

// TransitionProcessor attributes membership transitions.
type TransitionProcessor interface {
	HandleTransition(ctx context.Context, event services.TransitionEvent) (services.AttributionResult, error)
}

// TransitionHandler ingests membership transitions from external integrations.
type TransitionHandler struct {
	processor TransitionProcessor
}

// NewTransitionHandler constructs a TransitionHandler.
func NewTransitionHandler(processor TransitionProcessor) *TransitionHandler {
	return &TransitionHandler{processor: processor}
}

type transitionRequest struct {
	Subject   individualPayload `json:"subject"`
	OldStatus string            `json:"old_status" validate:"required,max=32"`
	NewStatus string            `json:"new_status" validate:"required,max=32"`
	Token     string            `json:"token" validate:"omitempty,max=255"`
	Payload   json.RawMessage   `json:"payload"`
}

type transitionResponse struct {
	Outcome services.Outcome       `json:"outcome"`
	Credit  *models.ReferralCredit `json:"credit,omitempty"`
}

// Ingest processes a single membership transition.
// POST /api/communities/:communityID/transitions
func (h *TransitionHandler) Ingest(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}

	var req transitionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	event := services.TransitionEvent{
		CommunityID: communityID,
		Subject:     req.Subject.model(),
		OldStatus:   models.ParseMemberStatus(req.OldStatus),
		NewStatus:   models.ParseMemberStatus(req.NewStatus),
		Token:       strings.TrimSpace(req.Token),
	}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		event.Payload = req.Payload
	}

	result, err := h.processor.HandleTransition(requestContext(c), event)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, transitionResponse{
		Outcome: result.Outcome,
		Credit:  result.Credit,
	})
}
