package models

// Capability is a typed permission bitset resolved once at session start by the
// auth middleware and passed by value into moderation operations. It replaces
// per-call string role checks.
type Capability uint8

const (
	// CapEndAnyRoom allows ending any room, bypassing the host-identity check.
	CapEndAnyRoom Capability = 1 << iota
	// CapBanRoom allows flagging a room as banned.
	CapBanRoom
	// CapModerateAnyChat allows chat ban/unban in rooms the caller does not host.
	CapModerateAnyChat
	// CapResolveReports allows resolving and dismissing moderation reports.
	CapResolveReports
	// CapBanHost allows issuing and lifting host-level livestreaming bans.
	CapBanHost
	// CapBypassPrivacy allows subscribing to follow_only rooms without a follow edge.
	CapBypassPrivacy
)

// CapAdmin is the full capability set granted to administrators.
const CapAdmin = CapEndAnyRoom | CapBanRoom | CapModerateAnyChat |
	CapResolveReports | CapBanHost | CapBypassPrivacy

// Has reports whether all bits of want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// CapabilitiesFor resolves the capability set for a user record.
func CapabilitiesFor(u *User) Capability {
	if u != nil && u.IsAdmin {
		return CapAdmin
	}
	return 0
}
