package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"
)

// DefaultAuthorityHost is the Azure AD v2 login host.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// DefaultScopes requests every application permission granted to the app
// registration on Microsoft Graph.
var DefaultScopes = []string{"https://graph.microsoft.com/.default"}

// tokenRefreshMargin is how long before expiry a cached token is replaced.
const tokenRefreshMargin = 5 * time.Minute

// ErrAuthentication marks a rejected client-credential exchange: the
// identity provider answered with an OAuth2 error or issued no token.
// Transport failures and cancellation are returned without it.
var ErrAuthentication = errors.New("graph: authentication failed")

// CredentialsConfig holds the service identity used for the
// client-credential grant.
type CredentialsConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	AuthorityHost string       // defaults to DefaultAuthorityHost
	TokenURL      string       // overrides AuthorityHost + TenantID when set
	HTTPClient    *http.Client // used for the token request; nil = http.DefaultClient
}

// ClientCredentials is a TokenSource backed by the OAuth2 client-credential
// grant. The token is fetched on first use and cached in memory until it is
// about to expire or Invalidate is called. Concurrent callers that find no
// usable token share a single exchange.
type ClientCredentials struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group

	mu  sync.RWMutex
	tok *oauth2.Token

	// now returns the current time. Tests override it to simulate expiry.
	now func() time.Time
}

// NewClientCredentials creates a token source for the given identity.
// No network call is made until Token is first called.
func NewClientCredentials(cfg CredentialsConfig, logger *slog.Logger) *ClientCredentials {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &ClientCredentials{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL(cfg),
			Scopes:       scopes,
			// Azure AD accepts the secret in the form body; pinning the style
			// avoids a second probing request when credentials are rejected.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient: cfg.HTTPClient,
		logger:     logger,
		now:        time.Now,
	}
}

// tokenURL resolves the v2.0 token endpoint for the tenant.
func tokenURL(cfg CredentialsConfig) string {
	if cfg.TokenURL != "" {
		return cfg.TokenURL
	}

	host := strings.TrimRight(cfg.AuthorityHost, "/")
	if host == "" || host == DefaultAuthorityHost {
		return microsoft.AzureADEndpoint(cfg.TenantID).TokenURL
	}

	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", host, cfg.TenantID)
}

// Token returns the cached access token, performing the client-credential
// exchange when there is none or it is about to expire.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if tok := c.cachedToken(); tok != nil {
		return tok.AccessToken, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		// Another exchange may have finished since the cache was checked.
		if tok := c.cachedToken(); tok != nil {
			return tok, nil
		}

		return c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		tok, ok := res.Val.(*oauth2.Token)
		if !ok {
			return "", fmt.Errorf("%w: unexpected token type %T", ErrAuthentication, res.Val)
		}

		return tok.AccessToken, nil
	}
}

// Invalidate drops the cached token so the next Token call re-authenticates.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok != nil {
		c.logger.Info("cached access token invalidated")
	}

	c.tok = nil
}

// Expiry returns the expiry of the cached token, or the zero time when no
// token is cached or the provider did not report one.
func (c *ClientCredentials) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tok == nil {
		return time.Time{}
	}

	return c.tok.Expiry
}

// cachedToken returns the cached token if it is still usable.
func (c *ClientCredentials) cachedToken() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tok == nil {
		return nil
	}

	if !c.tok.Expiry.IsZero() && !c.now().Add(tokenRefreshMargin).Before(c.tok.Expiry) {
		return nil
	}

	return c.tok
}

// fetch performs one client-credential exchange and stores the result.
func (c *ClientCredentials) fetch(ctx context.Context) (*oauth2.Token, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	c.logger.Info("requesting access token",
		slog.String("client_id", c.cfg.ClientID),
		slog.String("token_url", c.cfg.TokenURL),
	)

	tok, err := c.cfg.Token(ctx)
	if err != nil {
		status, code, desc := AuthErrorDetails(err)
		c.logger.Error("client credential exchange failed",
			slog.Int("status", status),
			slog.String("code", code),
			slog.String("description", desc),
			slog.String("error", err.Error()),
		)

		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}

		return nil, fmt.Errorf("graph: requesting access token: %w", err)
	}

	if tok == nil || tok.AccessToken == "" {
		c.logger.Error("identity provider returned no access token")
		return nil, fmt.Errorf("%w: identity provider returned no access token", ErrAuthentication)
	}

	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()

	c.logger.Info("access token acquired", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

// AuthErrorDetails extracts the identity provider's HTTP status, OAuth2 error
// code and description from err. Zero values are returned for errors that
// did not come from the token endpoint.
func AuthErrorDetails(err error) (status int, code, description string) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return 0, "", ""
	}

	if re.Response != nil {
		status = re.Response.StatusCode
	}

	return status, re.ErrorCode, re.ErrorDescription
}
