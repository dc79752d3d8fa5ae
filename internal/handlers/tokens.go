package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/charlesng35/refledger/internal/models"
	appErrors "github.com/charlesng35/refledger/pkg/errors"
	"github.com/charlesng35/refledger/pkg/response"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// IdentityStore records individuals seen through the API.
type IdentityStore interface {
	Upsert(ctx context.Context, individual models.Individual) (bool, error)
}

// TokenRegistry issues and looks up invitation tokens.
type TokenRegistry interface {
	GetOrCreateToken(ctx context.Context, communityID, ownerID string) (*models.InvitationToken, bool, error)
	TokenFor(ctx context.Context, communityID, ownerID string) (*models.InvitationToken, error)
}

// TokenHandler exposes the invitation token registry.
type TokenHandler struct {
	identities IdentityStore
	tokens     TokenRegistry
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(identities IdentityStore, tokens TokenRegistry) *TokenHandler {
	return &TokenHandler{identities: identities, tokens: tokens}
}

type individualPayload struct {
	ID          string `json:"id" validate:"required,opaqueid"`
	Handle      string `json:"handle" validate:"omitempty,max=64"`
	DisplayName string `json:"display_name" validate:"omitempty,max=256"`
}

func (p individualPayload) model() models.Individual {
	return models.Individual{
		ID:          strings.TrimSpace(p.ID),
		Handle:      strings.TrimPrefix(strings.TrimSpace(p.Handle), "@"),
		DisplayName: strings.TrimSpace(p.DisplayName),
	}
}

type issueTokenRequest struct {
	Owner individualPayload `json:"owner"`
}

type tokenResponse struct {
	CommunityID string `json:"community_id"`
	OwnerID     string `json:"owner_id"`
	Token       string `json:"token"`
	Created     bool   `json:"created"`
}

// Issue returns the owner's invitation token, minting it on first request.
// POST /api/communities/:communityID/tokens
func (h *TokenHandler) Issue(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}

	var req issueTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	owner := req.Owner.model()
	if _, err := h.identities.Upsert(ctx, owner); err != nil {
		writeServiceError(c, err)
		return
	}

	token, created, err := h.tokens.GetOrCreateToken(ctx, communityID, owner.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, tokenResponse{
		CommunityID: token.CommunityID,
		OwnerID:     token.OwnerID,
		Token:       token.Token,
		Created:     created,
	})
}

// Get returns an already issued token without minting one.
// GET /api/communities/:communityID/tokens/:ownerID
func (h *TokenHandler) Get(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}
	ownerID, ok := pathID(c, "ownerID")
	if !ok {
		return
	}

	token, err := h.tokens.TokenFor(requestContext(c), communityID, ownerID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		CommunityID: token.CommunityID,
		OwnerID:     token.OwnerID,
		Token:       token.Token,
	})
}

// QRCode renders the owner's stored token as a PNG QR code.
// GET /api/communities/:communityID/tokens/:ownerID/qr
func (h *TokenHandler) QRCode(c *gin.Context) {
	communityID, ok := pathID(c, "communityID")
	if !ok {
		return
	}
	ownerID, ok := pathID(c, "ownerID")
	if !ok {
		return
	}

	size := parseIntQuery(c, "size", defaultQRSize)
	if size < minQRSize {
		size = minQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	token, err := h.tokens.TokenFor(requestContext(c), communityID, ownerID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	png, err := qrcode.Encode(token.Token, qrcode.Medium, size)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "failed to render QR code"))
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
