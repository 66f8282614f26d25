package engine

// Tier identifies the priority level that produced a decision.
type Tier string

// Priority levels, highest first. The first tier that does not abstain wins.
const (
	TierSuperuser     Tier = "SUPERUSER"
	TierInactive      Tier = "INACTIVE"
	TierResourceDeny  Tier = "RESOURCE_DENY"
	TierResourceAllow Tier = "RESOURCE_ALLOW"
	TierUserDeny      Tier = "USER_DENY"
	TierUserAllow     Tier = "USER_ALLOW"
	TierRole          Tier = "ROLE"
	TierDefault       Tier = "DEFAULT"
)

// Effect is the ternary outcome of a single tier.
type Effect int

const (
	// EffectAbstain means the tier has no opinion and the chain continues.
	EffectAbstain Effect = iota
	// EffectAllow is a decisive allow.
	EffectAllow
	// EffectDeny is a decisive deny.
	EffectDeny
)

// Decision is the engine's verdict. Tier and Reason carry provenance for
// audit and logging; a deny is a normal outcome, never an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Tier    Tier   `json:"tier"`
	Reason  string `json:"reason"`
}

func allow(tier Tier, reason string) Decision {
	return Decision{Allowed: true, Tier: tier, Reason: reason}
}

func deny(tier Tier, reason string) Decision {
	return Decision{Allowed: false, Tier: tier, Reason: reason}
}
