package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/refledger/internal/services"
	appErrors "github.com/charlesng35/refledger/pkg/errors"
	"github.com/charlesng35/refledger/pkg/response"
)

var (
	errNoAuthority = appErrors.New("INVITE_AUTHORITY_MISSING", "no invitation authority is configured", http.StatusServiceUnavailable)
	errCollision   = appErrors.New("TOKEN_COLLISION", "invitation token already belongs to another owner", http.StatusConflict)
)

// writeServiceError renders a service failure using the API error taxonomy.
func writeServiceError(c *gin.Context, err error) {
	var authErr *services.AuthorityError
	if errors.As(err, &authErr) && authErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(authErr.RetryAfter.Seconds()))))
	}
	response.Error(c, mapServiceError(err))
}

func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInvitePermissionDenied):
		return appErrors.ErrInvitePermission.WithInternal(err)
	case errors.Is(err, services.ErrInviteAuthorityUnavailable):
		return appErrors.ErrInviteUnavailable.WithInternal(err)
	case errors.Is(err, services.ErrNoAuthority):
		return errNoAuthority.WithInternal(err)
	case errors.Is(err, services.ErrTokenCollision):
		return errCollision.WithInternal(err)
	case errors.Is(err, services.ErrInvalidEvent):
		return appErrors.NewBadRequest("community and subject ids are required")
	case errors.Is(err, services.ErrTokenNotFound):
		return appErrors.New(appErrors.ErrNotFound.Code, "invitation token not found", appErrors.ErrNotFound.StatusCode)
	case errors.Is(err, services.ErrIndividualNotFound):
		return appErrors.New(appErrors.ErrNotFound.Code, "individual not found", appErrors.ErrNotFound.StatusCode)
	default:
		return appErrors.FromError(err)
	}
}
