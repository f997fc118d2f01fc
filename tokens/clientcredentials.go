package tokens

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentialsConfig names an OAuth2 client-credentials registration
// scoped to one audience.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Scopes       []string
}

// ClientCredentials obtains tokens via the OAuth2 client-credentials
// grant. Tokens are cached until expiry; refresh is serialized so
// concurrent callers never trigger parallel grants.
type ClientCredentials struct {
	cfg clientcredentials.Config

	mu      sync.Mutex
	current *oauth2.Token
}

// NewClientCredentials builds a ClientCredentials source.
func NewClientCredentials(cfg ClientCredentialsConfig) (*ClientCredentials, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("tokens: token URL and client id are required")
	}
	cc := clientcredentials.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}
	return &ClientCredentials{cfg: cc}, nil
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Valid() {
		return c.current.AccessToken, nil
	}
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", ErrUnavailable
	}
	c.current = tok
	return tok.AccessToken, nil
}
