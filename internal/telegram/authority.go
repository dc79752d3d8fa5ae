package telegram

import (
	"context"
	"errors"

	"github.com/charlesng35/refledger/internal/services"
)

// InviteAuthority mints referral invitations through createChatInviteLink.
type InviteAuthority struct {
	client *Client
}

var _ services.InviteAuthority = (*InviteAuthority)(nil)

// NewInviteAuthority wraps client as a services.InviteAuthority.
func NewInviteAuthority(client *Client) *InviteAuthority {
	return &InviteAuthority{client: client}
}

// CreateInviteLink returns a fresh instant-join link named after label.
func (a *InviteAuthority) CreateInviteLink(ctx context.Context, communityID, label string) (string, error) {
	link, err := a.client.CreateChatInviteLink(ctx, communityID, label)
	if err != nil {
		return "", AsAuthorityError(err)
	}
	if link.InviteLink == "" {
		return "", services.NewAuthorityError(services.AuthorityTransport, errors.New("telegram: empty invite link in response"))
	}
	return link.InviteLink, nil
}
