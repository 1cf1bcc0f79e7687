package service

import (
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
)

// Principal is the read-only identity the core works with. It is built once
// per request from the stored profile and never mutated afterwards.
type Principal struct {
	ID               string
	Email            string
	Nickname         string
	Avatar           *string
	IdentityType     types.IdentityType
	Role             types.Role
	CanManageJournal bool
}

func PrincipalFromProfile(p *repository.Profile) *Principal {
	if p == nil {
		return nil
	}
	return &Principal{
		ID:               p.ID,
		Email:            p.Email,
		Nickname:         p.Nickname,
		Avatar:           p.Avatar,
		IdentityType:     p.IdentityType,
		Role:             p.Role,
		CanManageJournal: p.CanManageJournal,
	}
}

// Classify derives the tier. An administrative role always wins over the
// identity type; a nil principal is anonymous.
func Classify(p *Principal) types.Tier {
	if p == nil {
		return types.TierAnonymous
	}
	switch p.Role {
	case types.RoleSuperuser:
		return types.TierSuperuser
	case types.RoleAdmin:
		return types.TierAdmin
	}
	if p.IdentityType == types.IdentityGuest {
		return types.TierGuest
	}
	return types.TierMember
}

// CanReview reports whether p may approve or reject access requests. Admins
// also need the journal permission; superusers always pass.
func CanReview(p *Principal) bool {
	switch Classify(p) {
	case types.TierSuperuser:
		return true
	case types.TierAdmin:
		return p.CanManageJournal
	}
	return false
}
