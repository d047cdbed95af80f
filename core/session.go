package core

type (
	// UserIdentity is an authenticated user as seen by the collaboration
	// core. Subject is the stable identifier used for permission lookups;
	// Username is what peers see in presence events.
	UserIdentity struct {
		Subject  string `json:"subject"`
		Username string `json:"username"`
	}

	// SessionResolver validates an opaque credential and returns the
	// identity it belongs to. Returns ErrUnauthenticated for absent or
	// invalid credentials.
	SessionResolver interface {
		Resolve(credential string) (UserIdentity, error)
	}
)
