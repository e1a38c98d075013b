// Package server exposes the WakaTime integration over HTTP: authorization
// initiation, the provider callback, and on-demand usage fetches.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/akumotech/wakasync/internal/db"
	"github.com/akumotech/wakasync/internal/oauthstate"
	"github.com/akumotech/wakasync/internal/usage"
	"github.com/akumotech/wakasync/internal/wakatime"
)

// UsageFetcher is the executor surface the usage endpoints need.
type UsageFetcher interface {
	FetchToday(ctx context.Context, accountID uint) (json.RawMessage, error)
	FetchSummaries(ctx context.Context, accountID uint, start, end string) (json.RawMessage, error)
}

// AuthorizeHandler starts the OAuth flow: issues a CSRF state token bound to
// the calling account and redirects to the provider's consent page.
func AuthorizeHandler(states oauthstate.Store, tokens *wakatime.TokenClient, creds *db.Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		if _, _, err := creds.Get(r.Context(), accountID); err != nil {
			writeCredsError(w, err)
			return
		}

		state, err := states.Issue(accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not start authorization")
			return
		}
		http.Redirect(w, r, tokens.AuthorizeURL(state, accountID), http.StatusTemporaryRedirect)
	}
}

// CallbackHandler finishes the OAuth flow: validates the single-use state,
// exchanges the code and stores the encrypted token pair. A callback for an
// already-linked account is a benign no-op.
func CallbackHandler(states oauthstate.Store, tokens *wakatime.TokenClient, cipher wakatime.TokenCipher, creds *db.Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			writeError(w, http.StatusBadRequest, "missing code or state in callback")
			return
		}

		if !states.Validate(state, accountID) {
			log.Printf("⚠️ Rejected wakatime callback with invalid state for account %d", accountID)
			writeError(w, http.StatusBadRequest, "invalid or expired state token, please restart authorization")
			return
		}

		access, _, err := creds.Get(r.Context(), accountID)
		if err != nil {
			writeCredsError(w, err)
			return
		}
		if access != "" {
			// Duplicate provider redirect for a linked account.
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "ok",
				"message": "wakatime already linked",
			})
			return
		}

		accessToken, refreshToken, err := tokens.ExchangeCode(r.Context(), code, accountID)
		if err != nil {
			var xerr *wakatime.ExchangeError
			if errors.As(err, &xerr) && xerr.Rejected() {
				writeError(w, http.StatusBadRequest, "authorization failed, please restart authorization")
				return
			}
			writeError(w, http.StatusBadGateway, "could not reach wakatime, please retry authorization")
			return
		}

		accessCT, err := cipher.EncryptString(accessToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not store credentials")
			return
		}
		refreshCT := ""
		if refreshToken != "" {
			if refreshCT, err = cipher.EncryptString(refreshToken); err != nil {
				writeError(w, http.StatusInternalServerError, "could not store credentials")
				return
			}
		}
		if err := creds.Link(r.Context(), accountID, accessCT, refreshCT); err != nil {
			writeCredsError(w, err)
			return
		}

		log.Printf("✅ Linked wakatime for account %d", accountID)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "wakatime linked",
		})
	}
}

// UsageTodayHandler fetches, normalizes, persists and returns today's usage
// for a linked account.
func UsageTodayHandler(fetcher UsageFetcher, store *usage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}

		raw, err := fetcher.FetchToday(r.Context(), accountID)
		if err != nil {
			writeUsageError(w, err)
			return
		}
		summary, err := usage.Normalize(accountID, raw)
		if err != nil {
			writeUsageError(w, err)
			return
		}
		if err := store.Save(r.Context(), summary); err != nil {
			writeError(w, http.StatusInternalServerError, "could not persist usage summary")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// UsageRangeHandler returns normalized usage for an inclusive date range.
// Range results are not persisted.
func UsageRangeHandler(fetcher UsageFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		start := r.URL.Query().Get("start")
		end := r.URL.Query().Get("end")
		startDay, err1 := time.Parse("2006-01-02", start)
		endDay, err2 := time.Parse("2006-01-02", end)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
			return
		}
		if startDay.After(endDay) {
			writeError(w, http.StatusBadRequest, "start must not be after end")
			return
		}

		raw, err := fetcher.FetchSummaries(r.Context(), accountID, start, end)
		if err != nil {
			writeUsageError(w, err)
			return
		}
		summaries, err := usage.NormalizeRange(accountID, raw)
		if err != nil {
			writeUsageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": summaries})
	}
}

// HealthzHandler is a liveness probe.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := r.URL.Query().Get("account_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return 0, false
	}
	return uint(id), true
}

// writeUsageError maps the fetch/normalize error taxonomy onto HTTP answers.
func writeUsageError(w http.ResponseWriter, err error) {
	var (
		cerr *wakatime.CredentialError
		rerr *wakatime.RetryableError
		uerr *wakatime.UpstreamError
		merr *usage.MalformedPayloadError
	)
	switch {
	case errors.As(err, &cerr):
		writeError(w, http.StatusNotFound, "wakatime is not linked for this account")
	case errors.Is(err, wakatime.ErrReauthorizationRequired):
		writeError(w, http.StatusUnauthorized, "wakatime authorization expired, please re-authorize")
	case errors.As(err, &rerr):
		writeError(w, http.StatusServiceUnavailable, "wakatime is unavailable, try again later")
	case errors.As(err, &uerr):
		writeError(w, http.StatusBadGateway, "wakatime returned an error")
	case errors.As(err, &merr):
		writeError(w, http.StatusBadGateway, "unexpected wakatime response")
	case errors.Is(err, db.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeCredsError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
