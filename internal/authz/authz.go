// Package authz decides whether an actor may request an action on a
// transaction. Decisions are pure functions of the actor's identity and the
// transaction's parties; state legality is judged separately by the domain
// layer, so a denial here never reveals whether the move would have been
// legal.
package authz

import (
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
)

// Actor is the authenticated caller as established by the access token.
type Actor struct {
	ID string
	// Arbiter marks platform arbitration staff. Arbiters resolve disputes but
	// hold no party role on any transaction.
	Arbiter bool
}

// RoleOf maps an actor onto their relation to the transaction.
func RoleOf(actor Actor, t *domain.Transaction) domain.Role {
	switch {
	case actor.Arbiter:
		return domain.RoleArbiter
	case actor.ID == t.BuyerID:
		return domain.RoleBuyer
	case actor.ID == t.SellerID:
		return domain.RoleSeller
	default:
		return domain.RoleNone
	}
}

// allowed maps each action onto the roles permitted to request it.
var allowed = map[domain.Action][]domain.Role{
	domain.ActionFund:            {domain.RoleBuyer},
	domain.ActionSubmitWork:      {domain.RoleSeller},
	domain.ActionApprove:         {domain.RoleBuyer},
	domain.ActionRequestRevision: {domain.RoleBuyer},
	domain.ActionOpenDispute:     {domain.RoleBuyer, domain.RoleSeller},
	domain.ActionResolveDispute:  {domain.RoleArbiter},
}

// Decide returns nil when the actor's role permits the action, and an
// AuthorizationDenied error otherwise.
func Decide(actor Actor, action domain.Action, t *domain.Transaction) error {
	role := RoleOf(actor, t)

	for _, r := range allowed[action] {
		if role == r {
			return nil
		}
	}

	return domain.NewDenialError("role " + string(role) + " may not perform " + string(action))
}

// CanView reports whether the actor may read the transaction. Parties and
// arbiters see the full record; everyone else gets NotFound, not a denial,
// so existence is not leaked.
func CanView(actor Actor, t *domain.Transaction) bool {
	return RoleOf(actor, t) != domain.RoleNone
}
