package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrIndividualNotFound indicates the identity store has no row for the id.
	ErrIndividualNotFound = errors.New("identity: individual not found")
	// ErrTokenNotFound indicates the token does not resolve to an owner in the community.
	ErrTokenNotFound = errors.New("invitation: token not found")
	// ErrTokenCollision signals that the authority returned a token already owned by someone else.
	ErrTokenCollision = errors.New("invitation: token already registered to another owner")
	// ErrNoAuthority is returned when a token must be minted but no authority is configured.
	ErrNoAuthority = errors.New("invitation: no invitation authority configured")
	// ErrInvalidEvent indicates a transition event without community or subject.
	ErrInvalidEvent = errors.New("attribution: event requires community and subject ids")

	// ErrInvitePermissionDenied matches AuthorityError values of kind permission.
	ErrInvitePermissionDenied = errors.New("invitation authority: bot lacks admin or invite-users rights in the community")
	// ErrInviteAuthorityUnavailable matches AuthorityError values that are worth retrying later.
	ErrInviteAuthorityUnavailable = errors.New("invitation authority: temporarily unavailable")
)

// AuthorityErrorKind classifies invitation authority failures.
type AuthorityErrorKind string

const (
	AuthorityPermission  AuthorityErrorKind = "permission"
	AuthorityRateLimited AuthorityErrorKind = "rate_limited"
	AuthorityTransport   AuthorityErrorKind = "transport"
)

// AuthorityError is the PermissionOrTransport failure of the invitation authority.
// It is reported to the caller as-is; the registry never retries it.
type AuthorityError struct {
	Kind       AuthorityErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *AuthorityError) Error() string {
	var msg string
	switch e.Kind {
	case AuthorityPermission:
		msg = ErrInvitePermissionDenied.Error() + "; grant the bot admin status with the 'Invite users' right"
	case AuthorityRateLimited:
		msg = "invitation authority: rate limited"
		if e.RetryAfter > 0 {
			msg = fmt.Sprintf("%s, retry after %s", msg, e.RetryAfter)
		}
	default:
		msg = "invitation authority: transport failure"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// Is lets callers test the category with errors.Is against the exported sentinels.
func (e *AuthorityError) Is(target error) bool {
	switch target {
	case ErrInvitePermissionDenied:
		return e.Kind == AuthorityPermission
	case ErrInviteAuthorityUnavailable:
		return e.Kind != AuthorityPermission
	}
	return false
}

// NewAuthorityError builds an AuthorityError of the given kind.
func NewAuthorityError(kind AuthorityErrorKind, err error) *AuthorityError {
	return &AuthorityError{Kind: kind, Err: err}
}

func asAuthorityError(err error) *AuthorityError {
	var authErr *AuthorityError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthorityError{Kind: AuthorityTransport, Err: err}
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
