package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/charlesng35/refledger/internal/services"
)

var permissionHints = []string{
	"not enough rights",
	"need administrator rights",
	"chat_admin_required",
	"member list is inaccessible",
	"bot is not a member",
	"have no rights",
	"not an administrator",
	"chat not found",
}

// Classify maps a client error onto the invitation authority failure kinds.
// Missing rights are permanent until an operator acts; everything else may pass on retry.
func Classify(err error) services.AuthorityErrorKind {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return services.AuthorityTransport
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return services.AuthorityRateLimited
	case apiErr.Code == http.StatusForbidden:
		return services.AuthorityPermission
	case apiErr.Code == http.StatusBadRequest:
		desc := strings.ToLower(apiErr.Message)
		for _, hint := range permissionHints {
			if strings.Contains(desc, hint) {
				return services.AuthorityPermission
			}
		}
		return services.AuthorityTransport
	default:
		return services.AuthorityTransport
	}
}

// RetryAfter reports the flood-control pause Telegram attached to err, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// AsAuthorityError wraps err in the invitation authority error taxonomy.
func AsAuthorityError(err error) *services.AuthorityError {
	authErr := services.NewAuthorityError(Classify(err), err)
	authErr.RetryAfter = RetryAfter(err)
	return authErr
}
