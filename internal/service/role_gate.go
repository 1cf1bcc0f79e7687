package service

import "github.com/baiweichihu/26b-website-sub001/internal/types"

// CanAccess is the presentation-side gate. It decides which actions a view
// offers; the stores re-check permissions on every write.
func CanAccess(p *Principal, capability types.Capability) bool {
	tier := Classify(p)
	switch capability {
	case types.CapSubmitAccessRequest:
		return p != nil && p.IdentityType == types.IdentityAlumni
	case types.CapApproveOrRejectRequest, types.CapViewAdminPanel:
		return tier.IsStaff()
	case types.CapManageAdminPermissions, types.CapPublishAnnouncement:
		return tier == types.TierSuperuser
	default:
		return false
	}
}

// Capabilities evaluates every known capability for p.
func Capabilities(p *Principal) map[types.Capability]bool {
	caps := make(map[types.Capability]bool, len(types.AllCapabilities))
	for _, c := range types.AllCapabilities {
		caps[c] = CanAccess(p, c)
	}
	return caps
}
