package domain

import "time"

// Capability names a feature the account tier is allowed to use.
type Capability string

const (
	CapabilityMessaging Capability = "messaging"
	CapabilityBilling   Capability = "billing"
	CapabilityReports   Capability = "reports"
)

// Entitlements is the feature snapshot fetched once at login and cached for
// the lifetime of the session. Both the UI and the realtime layer consult
// it through Can; nothing re-derives flags from the raw subscription.
type Entitlements map[Capability]bool

// Can reports whether the capability is enabled for this account tier.
func (e Entitlements) Can(c Capability) bool {
	return e[c]
}

// Session holds the authenticated identity, the bearer credential and the
// entitlement snapshot. It is owned by the session store; every other
// component receives read-only copies.
type Session struct {
	User         User         `json:"user"`
	Token        string       `json:"token"`
	Entitlements Entitlements `json:"entitlements"`
	CreatedAt    time.Time    `json:"created_at"`
}
