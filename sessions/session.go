package sessions

import "time"

// FlagOnboardingDone is raised once, right after a user's spreadsheet is provisioned.
const FlagOnboardingDone = "onboarding_done"

// State is the position of a session in the login flow.
type State int

const (
	StateAnonymous State = iota
	StateAwaitingCallback
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session is the server-side state correlated with a browser through the
// session cookie. It never holds token material.
type Session struct {
	ID           string          `json:"id"`
	Identity     string          `json:"identity,omitempty"`      // Set once the provider callback completes
	OAuthState   string          `json:"oauth_state,omitempty"`   // Anti-forgery value issued by /login
	PKCEVerifier string          `json:"pkce_verifier,omitempty"` // Code verifier paired with OAuthState
	ResourceID   string          `json:"resource_id,omitempty"`   // The user's provisioned spreadsheet
	Flags        map[string]bool `json:"flags,omitempty"`         // Read-once transient flags
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// State derives the login state. A session is only authenticated once it has
// both an identity and a provisioned resource.
func (s *Session) State() State {
	switch {
	case s.Identity != "" && s.ResourceID != "":
		return StateAuthenticated
	case s.OAuthState != "":
		return StateAwaitingCallback
	default:
		return StateAnonymous
	}
}

// Authenticate records the verified identity and its resource, and ends any
// pending authorization.
func (s *Session) Authenticate(identity, resourceID string) {
	s.Identity = identity
	s.ResourceID = resourceID
	s.OAuthState = ""
	s.PKCEVerifier = ""
}

// SetFlag raises a transient flag.
func (s *Session) SetFlag(name string) {
	if s.Flags == nil {
		s.Flags = make(map[string]bool)
	}
	s.Flags[name] = true
}

// PopFlag returns the flag and clears it. Every later call returns false
// until the flag is raised again.
func (s *Session) PopFlag(name string) bool {
	v := s.Flags[name]
	delete(s.Flags, name)
	return v
}

func (s Session) clone() Session {
	if s.Flags != nil {
		flags := make(map[string]bool, len(s.Flags))
		for k, v := range s.Flags {
			flags[k] = v
		}
		s.Flags = flags
	}
	return s
}
