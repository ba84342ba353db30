package enums

import "fmt"

// ActorRole identifies who is acting on an order. Roles are resolved by the
// auth layer per request and trusted as given downstream.
type ActorRole string

const (
	ActorRoleCustomer   ActorRole = "customer"
	ActorRoleShopkeeper ActorRole = "shopkeeper"
	ActorRoleDelivery   ActorRole = "delivery"
	ActorRoleAdmin      ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleShopkeeper,
	ActorRoleDelivery,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (a ActorRole) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorRole.
func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
