package session

import "github.com/topicrelay/backend/internal/services"

// Defaults for a connection that has not registered a name or session.
const (
	DefaultClientName = "<unknown>"
	DefaultSessionID  = "default"
)

// Identity is the name and session a connection publishes and subscribes
// under. A pinned field came from verified token claims and cannot be
// changed by in-band commands for the life of the connection.
type Identity struct {
	ClientName    string
	SessionID     string
	NamePinned    bool
	SessionPinned bool
}

// Anonymous returns the identity of a connection without a valid token.
func Anonymous() Identity {
	return Identity{ClientName: DefaultClientName, SessionID: DefaultSessionID}
}

// FromClaims pins the client name to the token subject and, when the token
// carries one, the session to its session id. Nil claims yield Anonymous.
func FromClaims(claims *services.Claims) Identity {
	id := Anonymous()
	if claims == nil {
		return id
	}
	if claims.Subject != "" {
		id.ClientName = claims.Subject
		id.NamePinned = true
	}
	if claims.SessionID != "" {
		id.SessionID = claims.SessionID
		id.SessionPinned = true
	}
	return id
}

// RegisterName sets the client name unless it is pinned.
func (id *Identity) RegisterName(name string) bool {
	if id.NamePinned {
		return false
	}
	id.ClientName = name
	return true
}

// RegisterSession sets the session unless it is pinned.
func (id *Identity) RegisterSession(sessionID string) bool {
	if id.SessionPinned {
		return false
	}
	id.SessionID = sessionID
	return true
}
