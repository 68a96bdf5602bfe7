package authz

// Reason annotates a Deny outcome for diagnostics. Reasons never widen a
// decision; callers must branch on Allowed only.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotAuthenticated Reason = "not-authenticated"
	ReasonNoGrant          Reason = "no-grant"
	ReasonRelationMissing  Reason = "relation-missing"
	ReasonStoreUnavailable Reason = "store-unavailable"
	ReasonSchema           Reason = "schema"
	ReasonUnknownAction    Reason = "unknown-action"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}
