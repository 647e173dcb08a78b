package models

import "time"

// Credential holds the broker-issued tokens needed to open and
// authenticate the market-data feed. Mutated only by the token refresher;
// readers tolerate values that are stale between a refresh and its
// propagation.
type Credential struct {
	APIKey         string    `json:"api_key"`
	ClientCode     string    `json:"client_code"`
	SessionToken   string    `json:"session_token"`
	RefreshToken   string    `json:"refresh_token"`
	FeedToken      string    `json:"feed_token"`
	TokenUpdatedAt time.Time `json:"token_updated_at"`
}

// Age returns how long ago the tokens were refreshed. A zero
// TokenUpdatedAt reports ok=false, meaning the age is unknown.
func (c *Credential) Age(now time.Time) (time.Duration, bool) {
	if c.TokenUpdatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(c.TokenUpdatedAt), true
}

// SessionTokens is the pair returned by a broker session refresh.
type SessionTokens struct {
	SessionToken string
	RefreshToken string
	FeedToken    string
}

// User is the order-gateway account an instance trades under. Owned by
// the excluded persistence layer; consumed read-only here.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	OrderAPIKey  string `json:"order_api_key"`
	OrderHostURL string `json:"order_host_url"`
}
