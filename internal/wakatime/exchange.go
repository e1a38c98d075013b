// Package wakatime talks to the WakaTime OAuth token endpoint and usage API.
package wakatime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Production endpoints. Overridable via SetEndpoints for tests.
const (
	AuthURL    = "https://wakatime.com/oauth/authorize"
	TokenURL   = "https://wakatime.com/oauth/token"
	APIBaseURL = "https://wakatime.com/api/v1"
)

// Exchange failure reasons. Rejected means the provider refused the grant
// (bad or expired code, dead refresh token) and a retry cannot help; the user
// has to restart authorization. Transient covers network failures, timeouts
// and 5xx answers.
const (
	ReasonRejected  = "rejected"
	ReasonTransient = "transient"
)

// ExchangeError reports a failed token-endpoint call.
type ExchangeError struct {
	Reason string
	Err    error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("wakatime: token exchange %s: %v", e.Reason, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Rejected reports whether the provider refused the grant outright.
func (e *ExchangeError) Rejected() bool { return e.Reason == ReasonRejected }

// TokenClient performs authorization-code and refresh-token exchanges against
// the provider's token endpoint.
type TokenClient struct {
	conf    *oauth2.Config
	timeout time.Duration
}

// NewTokenClient builds a client for the registered OAuth application.
func NewTokenClient(clientID, clientSecret, redirectURL string, scopes []string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  AuthURL,
				TokenURL: TokenURL,
			},
		},
		timeout: timeout,
	}
}

// SetEndpoints points the client at alternative authorize/token URLs.
func (c *TokenClient) SetEndpoints(authURL, tokenURL string) {
	c.conf.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// AuthorizeURL builds the provider consent redirect for one account. The
// account ID rides on the redirect URI so the callback can recover the
// initiating user, the same way the interactive flow binds state to them.
func (c *TokenClient) AuthorizeURL(state string, accountID uint) string {
	return c.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("redirect_uri", c.redirectFor(accountID)))
}

// ExchangeCode swaps an authorization code for a token pair. The refresh
// token may be empty if the provider withheld one.
func (c *TokenClient) ExchangeCode(ctx context.Context, code string, accountID uint) (access, refresh string, err error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("redirect_uri", c.redirectFor(accountID)))
	if err != nil {
		return "", "", classify(err)
	}
	return tok.AccessToken, tok.RefreshToken, nil
}

// Refresh mints a new access token from a refresh token. An empty returned
// refresh token means the provider did not rotate it; the caller must keep
// the old one.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	src := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", "", classify(err)
	}
	rotated := tok.RefreshToken
	if rotated == refreshToken {
		rotated = ""
	}
	return tok.AccessToken, rotated, nil
}

func (c *TokenClient) redirectFor(accountID uint) string {
	return c.conf.RedirectURL + "?account_id=" + strconv.FormatUint(uint64(accountID), 10)
}

func (c *TokenClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: c.timeout})
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps a token-endpoint failure onto the rejected/transient split:
// a 4xx answer from the provider is a refused grant, everything else is worth
// retrying on a later run.
func classify(err error) *ExchangeError {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil &&
		rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500 {
		return &ExchangeError{Reason: ReasonRejected, Err: err}
	}
	return &ExchangeError{Reason: ReasonTransient, Err: err}
}
