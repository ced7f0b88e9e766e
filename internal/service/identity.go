package service

import (
	"sarnabroker/internal/model"

	"github.com/google/uuid"
)

const (
	RoleMiller = "miller"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
	RoleFarmer = "farmer"
)

// ActingIdentity is who is performing an operation. Staff accounts carry their
// parent miller in EffectiveOwnerID and act on that miller's stock.
type ActingIdentity struct {
	UserID           uuid.UUID
	EffectiveOwnerID uuid.UUID
	Role             string
	IsStaff          bool
}

// OwnerID is the identity that owns records created or touched by this actor.
func (a ActingIdentity) OwnerID() uuid.UUID {
	if a.EffectiveOwnerID != uuid.Nil {
		return a.EffectiveOwnerID
	}
	return a.UserID
}

func (a ActingIdentity) IsAdmin() bool { return a.Role == RoleAdmin }

func (a ActingIdentity) ownsStock(s *model.StockListing) bool {
	return a.Role == RoleMiller && s.MillerID == a.OwnerID()
}

func (a ActingIdentity) isBuyerOf(b *model.Booking) bool {
	return a.Role == RoleBuyer && b.BuyerID == a.OwnerID()
}

func (a ActingIdentity) isMillerOf(b *model.Booking) bool {
	return a.Role == RoleMiller && b.MillerID == a.OwnerID()
}

// canView reports whether the actor is a party to the booking or an admin.
func (a ActingIdentity) canView(b *model.Booking) bool {
	return a.IsAdmin() || a.isBuyerOf(b) || a.isMillerOf(b)
}
