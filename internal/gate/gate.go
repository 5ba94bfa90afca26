// Package gate checks that a user belongs to the required channel before the purchase flow continues.
package gate

import (
	"context"

	"github.com/go-logr/logr"
)

// Membership roles as reported by the messaging platform.
const (
	RoleCreator       = "creator"
	RoleAdministrator = "administrator"
	RoleMember        = "member"
	RoleRestricted    = "restricted"
	RoleLeft          = "left"
	RoleKicked        = "kicked"
)

// MembershipLookup returns a user's role in a channel.
type MembershipLookup interface {
	ChatMemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Gate answers whether a user is subscribed to the configured channel.
type Gate struct {
	lookup  MembershipLookup
	channel string
	allowed map[string]bool
	log     logr.Logger
}

// New returns a Gate for channel ("@name" or a numeric "-100..." id).
func New(lookup MembershipLookup, channel string, log logr.Logger) *Gate {
	return &Gate{
		lookup:  lookup,
		channel: channel,
		allowed: map[string]bool{
			RoleMember:        true,
			RoleAdministrator: true,
			RoleCreator:       true,
		},
		log: log.WithName("gate"),
	}
}

// IsSubscribed reports channel membership. Lookup failures count as not subscribed.
func (g *Gate) IsSubscribed(ctx context.Context, userID int64) bool {
	role, err := g.lookup.ChatMemberStatus(ctx, g.channel, userID)
	if err != nil {
		g.log.Error(err, "membership lookup failed, treating as not subscribed", "user_id", userID, "channel", g.channel)
		return false
	}
	ok := g.allowed[role]
	g.log.V(1).Info("membership checked", "user_id", userID, "role", role, "subscribed", ok)
	return ok
}

// Channel returns the channel the gate checks.
func (g *Gate) Channel() string { return g.channel }
