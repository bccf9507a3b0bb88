package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/media"
)

// credentialTTL is how long a minted credential is assumed valid client-side;
// the gateway issues them with a longer window, so staying under it is safe.
const credentialTTL = time.Hour

// Credentials caches the media credential and refreshes it out-of-band over
// the gateway's REST endpoint during reconnection.
type Credentials struct {
	httpc   *http.Client
	baseURL string // http(s)://host of the gateway
	token   string // platform auth token
	now     func() time.Time

	mu     sync.Mutex
	cached media.Credential
}

func NewCredentials(baseURL, token string) *Credentials {
	return &Credentials{
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		token:   token,
		now:     time.Now,
	}
}

// Cache stores the credential received in the join handshake.
func (c *Credentials) Cache(cred media.Credential) {
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = c.now().Add(credentialTTL)
	}
	c.mu.Lock()
	c.cached = cred
	c.mu.Unlock()
}

func (c *Credentials) Cached() media.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Fresh requests a new credential from the gateway.
func (c *Credentials) Fresh(ctx context.Context, sessionID string) (media.Credential, error) {
	url := fmt.Sprintf("%s/meet/%s/livekit-token", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media.Credential{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return media.Credential{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return media.Credential{}, fmt.Errorf("token refresh: %s", resp.Status)
	}
	var reply api.TokenReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return media.Credential{}, err
	}
	cred := media.Credential{
		URL:         reply.LiveKit.URL,
		RoomName:    reply.LiveKit.RoomName,
		AccessToken: reply.LiveKit.AccessToken,
		ExpiresAt:   c.now().Add(credentialTTL),
	}
	c.Cache(cred)
	return cred, nil
}

// ForReconnect prefers a fresh credential and falls back to the cached one
// only while it has not expired.
func (c *Credentials) ForReconnect(ctx context.Context, sessionID string) (media.Credential, error) {
	cred, err := c.Fresh(ctx, sessionID)
	if err == nil {
		return cred, nil
	}
	cached := c.Cached()
	if !cached.Stale(c.now(), time.Minute) {
		return cached, nil
	}
	return media.Credential{}, err
}
