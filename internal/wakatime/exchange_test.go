package wakatime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func tokenEndpoint(t *testing.T, handler http.HandlerFunc) *TokenClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewTokenClient("cid", "csecret", "http://localhost/integrations/wakatime/callback",
		[]string{"read_logged_time"}, 5*time.Second)
	c.SetEndpoints(ts.URL+"/oauth/authorize", ts.URL+"/oauth/token")
	return c
}

func writeToken(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	body := `{"access_token":"` + access + `","token_type":"bearer","expires_in":3600`
	if refresh != "" {
		body += `,"refresh_token":"` + refresh + `"`
	}
	body += `}`
	w.Write([]byte(body))
}

func TestExchangeCode_Success(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("code"); got != "the-code" {
			t.Errorf("code = %q", got)
		}
		writeToken(w, "acc-1", "ref-1")
	})

	access, refresh, err := c.ExchangeCode(context.Background(), "the-code", 7)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if access != "acc-1" || refresh != "ref-1" {
		t.Fatalf("unexpected pair (%q, %q)", access, refresh)
	}
}

func TestExchangeCode_Rejected(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, _, err := c.ExchangeCode(context.Background(), "expired-code", 7)
	var xerr *ExchangeError
	if !errors.As(err, &xerr) || !xerr.Rejected() {
		t.Fatalf("expected rejected ExchangeError, got %v", err)
	}
}

func TestExchangeCode_Transient(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := c.ExchangeCode(context.Background(), "code", 7)
	var xerr *ExchangeError
	if !errors.As(err, &xerr) || xerr.Rejected() {
		t.Fatalf("expected transient ExchangeError, got %v", err)
	}
}

func TestRefresh_Success(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		writeToken(w, "acc-2", "ref-2")
	})

	access, rotated, err := c.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access != "acc-2" || rotated != "ref-2" {
		t.Fatalf("unexpected pair (%q, %q)", access, rotated)
	}
}

func TestRefresh_NoRotation(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "acc-2", "")
	})

	access, rotated, err := c.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access != "acc-2" {
		t.Fatalf("unexpected access %q", access)
	}
	if rotated != "" {
		t.Fatalf("expected no rotation, got %q", rotated)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	c := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, _, err := c.Refresh(context.Background(), "dead-refresh")
	var xerr *ExchangeError
	if !errors.As(err, &xerr) || !xerr.Rejected() {
		t.Fatalf("expected rejected ExchangeError, got %v", err)
	}
}

func TestRefresh_NetworkFailure(t *testing.T) {
	c := NewTokenClient("cid", "csecret", "http://localhost/cb", nil, 200*time.Millisecond)
	c.SetEndpoints("http://127.0.0.1:1/auth", "http://127.0.0.1:1/token")

	_, _, err := c.Refresh(context.Background(), "refresh")
	var xerr *ExchangeError
	if !errors.As(err, &xerr) || xerr.Rejected() {
		t.Fatalf("expected transient ExchangeError, got %v", err)
	}
}

func TestAuthorizeURL(t *testing.T) {
	c := NewTokenClient("cid", "csecret", "http://localhost/integrations/wakatime/callback",
		[]string{"read_logged_time"}, time.Second)

	u := c.AuthorizeURL("state-123", 7)
	for _, want := range []string{
		AuthURL,
		"client_id=cid",
		"response_type=code",
		"state=state-123",
		"scope=read_logged_time",
		"account_id%3D7",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("authorize URL missing %q: %s", want, u)
		}
	}
}
