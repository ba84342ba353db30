package orders

import (
	"fmt"

	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// transitionTable is the single source of truth for the order lifecycle.
// Forward edges walk pending → accepted → packed → out_for_delivery →
// delivered; cancellation is reachable until the parcel leaves the shop.
// A missing edge is an invalid transition regardless of role.
var transitionTable = map[edge][]enums.ActorRole{
	{enums.OrderStatusPending, enums.OrderStatusAccepted}:         {enums.ActorRoleShopkeeper},
	{enums.OrderStatusAccepted, enums.OrderStatusPacked}:          {enums.ActorRoleShopkeeper},
	{enums.OrderStatusPacked, enums.OrderStatusOutForDelivery}:    {enums.ActorRoleDelivery},
	{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered}: {enums.ActorRoleDelivery},

	{enums.OrderStatusPending, enums.OrderStatusCancelled}:  {enums.ActorRoleCustomer, enums.ActorRoleShopkeeper, enums.ActorRoleAdmin},
	{enums.OrderStatusAccepted, enums.OrderStatusCancelled}: {enums.ActorRoleShopkeeper, enums.ActorRoleAdmin},
	{enums.OrderStatusPacked, enums.OrderStatusCancelled}:   {enums.ActorRoleShopkeeper, enums.ActorRoleAdmin},
}

// ValidateTransition checks that the requested edge exists and that the actor
// role holds it. Pure function, no I/O.
func ValidateTransition(from, to enums.OrderStatus, role enums.ActorRole) error {
	if !from.IsValid() || !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and cannot change", from))
	}

	roles, ok := transitionTable[edge{from: from, to: to}]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to))
	}
	for _, allowed := range roles {
		if allowed == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %s may not move order from %s to %s", role, from, to))
}

// NextStatuses lists the statuses the given role could move an order to from
// the current status. Used by read endpoints to hint available actions.
func NextStatuses(from enums.OrderStatus, role enums.ActorRole) []enums.OrderStatus {
	var out []enums.OrderStatus
	for e, roles := range transitionTable {
		if e.from != from {
			continue
		}
		for _, allowed := range roles {
			if allowed == role {
				out = append(out, e.to)
				break
			}
		}
	}
	return out
}
