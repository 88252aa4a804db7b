package sigen

import (
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sigenflux/sigenflux/pkg/common"
)

// statsTimeout is longer than the default since the statistics endpoints can
// take a while to aggregate a full day.
const statsTimeout = 20 * time.Second

// Configured sets up a vendor API client from flags.
func Configured() *Client {
	baseURL := lflag.String("sigen-base-url", "https://api-eu.sigencloud.com", "Base URL for the Sigen cloud API")
	stationID := lflag.RequiredString("sigen-station-id", "Sigen station ID to collect")
	username := lflag.String("sigen-username", "", "Sigen account username (required for first login)")
	password := lflag.String("sigen-transformed-password", "", "Pre-transformed Sigen account password")
	clientAuth := lflag.String("sigen-client-auth", "c2lnZW46c2lnZW4=", "Base64 client credentials for the token endpoint")
	tokenFile := lflag.String("sigen-token-file", "sigen_token.json", "Path to the persisted token file")
	timeout := lflag.Duration("sigen-timeout", 15*time.Second, "Timeout for Sigen API requests")

	c := &Client{}
	lflag.Do(func() {
		c.client = common.HTTPClient(*timeout)
		c.statsClient = common.HTTPClient(statsTimeout)
		c.baseURL = *baseURL
		c.flowBackoff = 2 * time.Second
		c.stationID = *stationID
		c.auth = &Authenticator{
			client:     c.client,
			store:      NewStore(*tokenFile),
			baseURL:    *baseURL,
			username:   *username,
			password:   *password,
			clientAuth: *clientAuth,
			now:        time.Now,
		}
	})
	return c
}
