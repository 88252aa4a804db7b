package types

import "time"

// TokenFreshnessMargin is subtracted from the server-declared token lifetime
// so we never hand out a token that could expire mid-request.
const TokenFreshnessMargin = 300

// TokenRecord is the persisted OAuth token pair for the Sigen cloud. The JSON
// shape is the on-disk credential file format and must round-trip exactly.
// Records are immutable; a refresh or login produces a new record that
// supersedes the previous one on disk.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresIn is the server-declared validity in seconds.
	ExpiresIn int64 `json:"expires_in"`
	// RetrievedAt is the unix time the record was obtained.
	RetrievedAt int64 `json:"retrieved_at"`
}

// Fresh reports whether the access token is still usable at now. A record
// exactly at the margin boundary is not fresh.
func (r TokenRecord) Fresh(now time.Time) bool {
	return now.Unix() < r.RetrievedAt+r.ExpiresIn-TokenFreshnessMargin
}
