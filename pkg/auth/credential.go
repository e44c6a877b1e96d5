package auth

import "time"

// Credential is the single shared bearer credential for the ETIM API.
// It is owned exclusively by the Manager and replaced wholesale on
// every successful refresh.
type Credential struct {
	// Token is the bearer access token.
	Token string `json:"access_token"`

	// ObtainedAt is when the exchange that produced this token
	// completed.
	ObtainedAt time.Time `json:"obtained_at"`

	// ExpiresAt is the upstream-declared expiry time.
	ExpiresAt time.Time `json:"expires_at"`
}

// Usable reports whether the credential can still be attached to a
// request at the given instant. A credential inside the refresh skew
// window counts as unusable so callers refresh before hard expiry.
func (c Credential) Usable(now time.Time, skew time.Duration) bool {
	return c.Token != "" && now.Before(c.ExpiresAt.Add(-skew))
}
