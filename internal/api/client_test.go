package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, navigator nav.Navigator) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	c, err := NewClient(Options{
		BaseURL:   srv.URL,
		Jar:       jar,
		Navigator: navigator,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return c, srv
}

func setCSRF(t *testing.T, c *Client, srv *httptest.Server, value string) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c.HTTPClient.Jar.SetCookies(u, []*http.Cookie{{Name: DefaultCSRFCookieName, Value: value, Path: "/"}})
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestClient_CSRFHeaderOnMutatingRequestsOnly(t *testing.T) {
	seen := map[string]string{}
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen[r.Method] = r.Header.Get(DefaultCSRFHeaderName)
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		w.WriteHeader(http.StatusNoContent)
	}, nil)
	setCSRF(t, c, srv, "tok-123")

	ctx := context.Background()
	require.NoError(t, c.Do(ctx, http.MethodGet, "/auth/me", nil, nil))
	require.NoError(t, c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil))
	require.NoError(t, c.Do(ctx, http.MethodDelete, "/thing", nil, nil))

	assert.Equal(t, "", seen[http.MethodGet])
	assert.Equal(t, "tok-123", seen[http.MethodPost])
	assert.Equal(t, "tok-123", seen[http.MethodDelete])
}

func TestClient_MissingCSRFStillSends(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, r.Header.Get(DefaultCSRFHeaderName))
		w.WriteHeader(http.StatusOK)
	}, nil)

	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/auth/logout", nil, nil))
	assert.True(t, called)
}

// lookupJar answers csrf lookups through Value only
type lookupJar struct {
	http.CookieJar
	values map[string]string
}

func (j lookupJar) Cookies(*url.URL) []*http.Cookie { return nil }

func (j lookupJar) Value(_ *url.URL, name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func TestClient_CSRFFromValueJar(t *testing.T) {
	var header string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(DefaultCSRFHeaderName)
		w.WriteHeader(http.StatusNoContent)
	}, nil)
	base, err := cookiejar.New(nil)
	require.NoError(t, err)
	c.HTTPClient.Jar = lookupJar{CookieJar: base, values: map[string]string{DefaultCSRFCookieName: "from-value"}}

	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/auth/logout", nil, nil))
	assert.Equal(t, "from-value", header)
}

func TestClient_UnauthorizedRedirectsOutsidePublicPages(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
	}

	t.Run("dashboard", func(t *testing.T) {
		rec := nav.NewRecorder(nav.PathDashboard)
		c, _ := newTestClient(t, handler, rec)

		err := c.Do(context.Background(), http.MethodGet, "/auth/me", nil, nil)
		require.Error(t, err)
		assert.True(t, utils.IsAuthError(err))
		assert.Equal(t, "Not authenticated", utils.Detail(err, ""))

		last, ok := rec.Last()
		require.True(t, ok)
		assert.Equal(t, nav.PathLogin, last.Path)
		assert.Equal(t, nav.PathLogin, rec.Current())
	})

	t.Run("login page", func(t *testing.T) {
		rec := nav.NewRecorder(nav.PathLogin)
		c, _ := newTestClient(t, handler, rec)

		err := c.Do(context.Background(), http.MethodGet, "/auth/me", nil, nil)
		require.Error(t, err)
		assert.Empty(t, rec.History())
	})
}

func TestClient_ClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   utils.ErrorKind
	}{
		{http.StatusBadRequest, utils.KindClient},
		{http.StatusForbidden, utils.KindForbidden},
		{http.StatusTooManyRequests, utils.KindRateLimited},
		{http.StatusInternalServerError, utils.KindServer},
		{http.StatusBadGateway, utils.KindServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			}, nil)

			err := c.Do(context.Background(), http.MethodPost, "/auth/login", nil, nil)
			apiErr, ok := utils.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, "/auth/login", apiErr.Path)
		})
	}
}

func TestClient_NetworkAndTimeout(t *testing.T) {
	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c, err := NewClient(Options{BaseURL: srv.URL})
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "/auth/me", nil, nil)
		apiErr, ok := utils.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, utils.KindNetwork, apiErr.Kind)
		assert.True(t, utils.IsTransportError(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "/auth/me", nil, nil)
		apiErr, ok := utils.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, utils.KindTimeout, apiErr.Kind)
	})
}

func TestClient_DecodesJSONAndForm(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			assert.Equal(t, "a@b.com", r.PostForm.Get("username"))
			assert.Equal(t, "Abcd123!", r.PostForm.Get("password"))
			_, _ = io.WriteString(w, `{"tfa_required":true,"tfa_token":"t1","message":"code sent"}`)
		case "/auth/register/status/a@b.com":
			_, _ = io.WriteString(w, `{"status":"pending","message":"waiting","can_resend":true}`)
		default:
			http.NotFound(w, r)
		}
	}, nil)

	ctx := context.Background()
	login, err := c.Login(ctx, "a@b.com", "Abcd123!")
	require.NoError(t, err)
	assert.True(t, login.TFARequired)
	assert.Equal(t, "t1", login.TFAToken)
	assert.Nil(t, login.User)

	status, err := c.RegistrationStatus(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)
	assert.True(t, status.CanResend)
}

func TestClient_MeAcceptsBothShapes(t *testing.T) {
	bodies := []string{
		`{"user":{"id":1,"email":"a@b.com","full_name":null,"is_active":true,"created_at":"2024-01-02T03:04:05"}}`,
		`{"id":1,"email":"a@b.com","full_name":null,"is_active":true,"created_at":"2024-01-02T03:04:05"}`,
	}
	for _, body := range bodies {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}, nil)

		me, err := c.Me(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), me.ID)
		assert.Equal(t, "a@b.com", me.Email)
		assert.True(t, me.Active)
		assert.Equal(t, 2024, me.CreatedAt.Year())
	}
}

func TestClient_MeWithoutUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}, nil)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestClient_TwoFactorEndpoints(t *testing.T) {
	var enable map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/tfa/setup":
			_, _ = io.WriteString(w, `{"secret":"JBSWY3DPEHPK3PXP","qr_code":"otpauth://totp/App:a@b.com?secret=JBSWY3DPEHPK3PXP&issuer=App","backup_codes":["a","b"]}`)
		case "/auth/tfa/enable":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&enable))
			_, _ = io.WriteString(w, `{"message":"ok"}`)
		case "/auth/tfa/backup-codes":
			_, _ = io.WriteString(w, `["x","y","z"]`)
		case "/auth/login/complete":
			_, _ = io.WriteString(w, `{"message":"ok","user":{"id":7,"email":"a@b.com","full_name":"A"}}`)
		default:
			http.NotFound(w, r)
		}
	}, nil)

	ctx := context.Background()
	setup, err := c.TFASetup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, setup.BackupCodes)

	require.NoError(t, c.TFAEnable(ctx, "123456", "authenticator"))
	assert.Equal(t, map[string]string{"code": "123456", "method": "authenticator"}, enable)

	codes, err := c.BackupCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, codes, 3)

	id, err := c.CompleteLogin(ctx, "tok", "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.ID)
	assert.Equal(t, "A", id.DisplayName)
}
