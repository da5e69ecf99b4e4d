package auth

// State is a step of the startup bootstrap.
type State int

const (
	// StateUnknown is reported when bootstrap stopped before reading the store.
	StateUnknown State = iota
	StateNoCredential
	StateValidating
	StateRefreshing
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateNoCredential:
		return "NoCredential"
	case StateValidating:
		return "Validating"
	case StateRefreshing:
		return "Refreshing"
	case StateAuthenticated:
		return "Authenticated"
	case StateUnauthenticated:
		return "Unauthenticated"
	default:
		return "Unknown"
	}
}

// ValidationErrorPolicy decides what bootstrap does when validating the
// stored token fails for a reason other than 401.
type ValidationErrorPolicy int

const (
	// Propagate returns the error and leaves credentials and session untouched.
	Propagate ValidationErrorPolicy = iota

	// Logout clears the stored credentials and publishes a logged out session.
	Logout
)

func (p ValidationErrorPolicy) String() string {
	if p == Logout {
		return "logout"
	}
	return "propagate"
}

// ParseValidationErrorPolicy maps a configuration value to a policy. Empty
// selects Propagate.
func ParseValidationErrorPolicy(s string) (ValidationErrorPolicy, bool) {
	switch s {
	case "", "propagate":
		return Propagate, true
	case "logout":
		return Logout, true
	default:
		return Propagate, false
	}
}
