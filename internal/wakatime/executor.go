package wakatime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrReauthorizationRequired means the stored credentials are dead (refresh
// rejected or absent); both tokens have been cleared and the user must link
// WakaTime again.
var ErrReauthorizationRequired = errors.New("wakatime: reauthorization required")

// ErrNoCredentials means the account has no stored access token.
var ErrNoCredentials = errors.New("wakatime: no access token stored")

// CredentialError reports an unusable stored credential: nothing stored, or
// ciphertext that no longer decrypts. No network call was made.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return fmt.Sprintf("wakatime: credential unusable: %v", e.Err) }
func (e *CredentialError) Unwrap() error { return e.Err }

// RetryableError reports a network failure, timeout or provider outage.
// Stored tokens are untouched; the next scheduled run may succeed.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("wakatime: transient failure: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// UpstreamError reports a non-2xx API answer that a refresh cannot fix.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("wakatime: upstream returned %d: %s", e.Status, e.Body)
}

// CredentialStore is the executor's view of the persisted token pair. The
// implementations must update or clear both columns atomically, and
// UpdateTokens must be a compare-and-swap on the previously observed access
// ciphertext.
type CredentialStore interface {
	Get(ctx context.Context, accountID uint) (access, refresh string, err error)
	UpdateTokens(ctx context.Context, accountID uint, prevAccess, access, refresh string) (bool, error)
	ClearTokens(ctx context.Context, accountID uint) error
}

// TokenCipher seals and opens token strings (the credential vault).
type TokenCipher interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// request phases. The executor walks Direct → Refreshing → Retried at most
// once, which is the whole single-retry guarantee.
type phase int

const (
	phaseDirect phase = iota
	phaseRefreshing
	phaseRetried
)

// Executor issues authenticated WakaTime API calls for an account,
// transparently refreshing an expired access token and retrying the request
// exactly once. Refresh rotates (or clears) the stored pair as a side effect.
type Executor struct {
	creds  CredentialStore
	cipher TokenCipher
	tokens *TokenClient
	hc     *http.Client
	base   string
}

// NewExecutor wires the executor over its collaborators. base is the API
// root, e.g. APIBaseURL.
func NewExecutor(creds CredentialStore, cipher TokenCipher, tokens *TokenClient, base string, timeout time.Duration) *Executor {
	return &Executor{
		creds:  creds,
		cipher: cipher,
		tokens: tokens,
		hc:     &http.Client{Timeout: timeout},
		base:   base,
	}
}

// FetchToday returns the raw status-bar document for the current day.
func (e *Executor) FetchToday(ctx context.Context, accountID uint) (json.RawMessage, error) {
	return e.Do(ctx, accountID, http.MethodGet, "/users/current/status_bar/today", nil)
}

// FetchSummaries returns raw daily summaries for an inclusive date range
// (YYYY-MM-DD).
func (e *Executor) FetchSummaries(ctx context.Context, accountID uint, start, end string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("start", start)
	q.Set("end", end)
	return e.Do(ctx, accountID, http.MethodGet, "/users/current/summaries", q)
}

// Do executes one API call with the account's bearer token.
func (e *Executor) Do(ctx context.Context, accountID uint, method, path string, query url.Values) (json.RawMessage, error) {
	accessCT, refreshCT, err := e.creds.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if accessCT == "" {
		return nil, &CredentialError{Err: ErrNoCredentials}
	}
	access, err := e.cipher.DecryptString(accessCT)
	if err != nil {
		// Fail fast: a credential that no longer decrypts must not
		// reach the network.
		return nil, &CredentialError{Err: err}
	}

	reqURL := e.base + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	p := phaseDirect
	for {
		status, body, err := e.call(ctx, method, reqURL, access)
		if err != nil {
			return nil, &RetryableError{Err: err}
		}

		switch {
		case status == http.StatusUnauthorized && p == phaseDirect:
			p = phaseRefreshing
			access, err = e.refreshCredentials(ctx, accountID, accessCT, refreshCT)
			if err != nil {
				return nil, err
			}
			p = phaseRetried

		case status >= 200 && status < 300:
			return body, nil

		default:
			return nil, &UpstreamError{Status: status, Body: snippet(body)}
		}
	}
}

// refreshCredentials exchanges the refresh token and persists the new pair.
// On a rejected refresh the stored pair is cleared; on a lost rotation race
// the winner's token is adopted instead of overwriting it.
func (e *Executor) refreshCredentials(ctx context.Context, accountID uint, prevAccessCT, refreshCT string) (string, error) {
	if refreshCT == "" {
		log.Printf("⚠️ Account %d got 401 with no refresh token, clearing credentials", accountID)
		if err := e.creds.ClearTokens(ctx, accountID); err != nil {
			return "", err
		}
		return "", ErrReauthorizationRequired
	}

	refresh, err := e.cipher.DecryptString(refreshCT)
	if err != nil {
		// Half-valid state is not allowed: an undecryptable refresh
		// token takes the access token down with it.
		if cerr := e.creds.ClearTokens(ctx, accountID); cerr != nil {
			return "", cerr
		}
		return "", &CredentialError{Err: err}
	}

	access, rotated, err := e.tokens.Refresh(ctx, refresh)
	if err != nil {
		var xerr *ExchangeError
		if errors.As(err, &xerr) && xerr.Rejected() {
			log.Printf("🔒 Refresh rejected for account %d, clearing credentials", accountID)
			if cerr := e.creds.ClearTokens(ctx, accountID); cerr != nil {
				return "", cerr
			}
			return "", ErrReauthorizationRequired
		}
		return "", &RetryableError{Err: err}
	}

	accessCT, err := e.cipher.EncryptString(access)
	if err != nil {
		return "", err
	}
	newRefreshCT := refreshCT
	if rotated != "" {
		log.Printf("🔄 Provider rotated refresh token for account %d", accountID)
		if newRefreshCT, err = e.cipher.EncryptString(rotated); err != nil {
			return "", err
		}
	}

	swapped, err := e.creds.UpdateTokens(ctx, accountID, prevAccessCT, accessCT, newRefreshCT)
	if err != nil {
		return "", err
	}
	if !swapped {
		// A concurrent refresh won the row. Use its result.
		return e.adoptStored(ctx, accountID)
	}
	log.Printf("✅ Refreshed access token for account %d", accountID)
	return access, nil
}

func (e *Executor) adoptStored(ctx context.Context, accountID uint) (string, error) {
	accessCT, _, err := e.creds.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if accessCT == "" {
		return "", ErrReauthorizationRequired
	}
	access, err := e.cipher.DecryptString(accessCT)
	if err != nil {
		return "", &CredentialError{Err: err}
	}
	log.Printf("⏩ Account %d lost a refresh race, adopting the stored token", accountID)
	return access, nil
}

func (e *Executor) call(ctx context.Context, method, url, access string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Accept", "application/json")

	resp, err := e.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
