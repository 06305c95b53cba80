package domain

// Principal is the identity acting on behalf of a single request.
// The zero value is the anonymous principal.
type Principal struct {
	UserID string
}

// Anonymous reports whether no user was resolved for the request.
func (p Principal) Anonymous() bool {
	return p.UserID == ""
}
