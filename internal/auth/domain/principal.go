package domain

// Principal is the caller identified by a bearer token.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}
