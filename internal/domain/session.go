package domain

// Session carries the identity of the user behind a single request. It is
// resolved once per request by the transport layer and passed explicitly to
// every service operation; there is no ambient per-process user state.
type Session struct {
	UserID   string
	Username string
}

// Anonymous reports whether the session has no resolved user.
func (s Session) Anonymous() bool {
	return s.UserID == ""
}
