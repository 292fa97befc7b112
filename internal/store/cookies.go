package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/wayfarer/cli/internal/logging"
)

// CookieJar is an http.CookieJar whose contents survive restarts. The
// in-memory jar answers requests; every change is mirrored to the database.
type CookieJar struct {
	mu     sync.Mutex
	db     DBTX
	jar    *cookiejar.Jar
	logger *zap.Logger
	now    func() time.Time
}

// NewCookieJar creates an empty persistent jar
func NewCookieJar(db DBTX, logger *zap.Logger) (*CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &CookieJar{
		db:     db,
		jar:    jar,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}, nil
}

// Load restores unexpired cookies stored for base's scheme
func (j *CookieJar) Load(ctx context.Context, base *url.URL) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT name, domain, path, value, host_only, secure, http_only, expires_at
		FROM cookies
	`)
	if err != nil {
		return fmt.Errorf("failed to list cookies: %w", err)
	}
	defer rows.Close()

	now := j.now()
	var expired []storedCookie
	restored := 0

	j.mu.Lock()
	defer j.mu.Unlock()

	for rows.Next() {
		var c storedCookie
		var expires sql.NullInt64
		if err := rows.Scan(&c.Name, &c.Domain, &c.Path, &c.Value, &c.HostOnly, &c.Secure, &c.HTTPOnly, &expires); err != nil {
			return fmt.Errorf("failed to scan cookie row: %w", err)
		}
		if expires.Valid {
			c.Expires = time.Unix(expires.Int64, 0)
			if !c.Expires.After(now) {
				expired = append(expired, c)
				continue
			}
		}

		u := &url.URL{Scheme: base.Scheme, Host: strings.TrimPrefix(c.Domain, "."), Path: c.Path}
		j.jar.SetCookies(u, []*http.Cookie{c.httpCookie()})
		restored++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate cookie rows: %w", err)
	}

	for _, c := range expired {
		if err := j.delete(ctx, c.Name, c.Domain, c.Path); err != nil {
			return err
		}
	}

	j.logger.Debug("cookies restored", zap.Int("count", restored), zap.Int("expired", len(expired)))
	return nil
}

// SetCookies implements http.CookieJar
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := j.now()
	for _, c := range cookies {
		sc := newStoredCookie(u, c, now)
		var err error
		if sc.deleted(now) {
			err = j.delete(ctx, sc.Name, sc.Domain, sc.Path)
		} else {
			err = j.save(ctx, sc)
		}
		if err != nil {
			j.logger.Warn("cookie not persisted", zap.String("name", c.Name), zap.Error(err))
		}
	}
}

// Cookies implements http.CookieJar
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Value returns the value of the named cookie sent to u
func (j *CookieJar) Value(u *url.URL, name string) (string, bool) {
	for _, c := range j.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (j *CookieJar) save(ctx context.Context, c storedCookie) error {
	var expires sql.NullInt64
	if !c.Expires.IsZero() {
		expires = sql.NullInt64{Int64: c.Expires.Unix(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cookies (name, domain, path, value, host_only, secure, http_only, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, domain, path) DO UPDATE SET
			value = excluded.value,
			host_only = excluded.host_only,
			secure = excluded.secure,
			http_only = excluded.http_only,
			expires_at = excluded.expires_at
	`, c.Name, c.Domain, c.Path, c.Value, c.HostOnly, c.Secure, c.HTTPOnly, expires)
	if err != nil {
		return fmt.Errorf("failed to save cookie[%s]: %w", c.Name, err)
	}
	return nil
}

func (j *CookieJar) delete(ctx context.Context, name, domain, path string) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM cookies WHERE name = ? AND domain = ? AND path = ?`, name, domain, path)
	if err != nil {
		return fmt.Errorf("failed to delete cookie[%s]: %w", name, err)
	}
	return nil
}

type storedCookie struct {
	Name     string
	Domain   string
	Path     string
	Value    string
	HostOnly bool
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
	MaxAge   int
}

func newStoredCookie(u *url.URL, c *http.Cookie, now time.Time) storedCookie {
	sc := storedCookie{
		Name:     c.Name,
		Domain:   strings.ToLower(c.Domain),
		Path:     c.Path,
		Value:    c.Value,
		HostOnly: c.Domain == "",
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
		Expires:  c.Expires,
		MaxAge:   c.MaxAge,
	}
	if sc.HostOnly {
		sc.Domain = strings.ToLower(u.Hostname())
	}
	if sc.Path == "" || !strings.HasPrefix(sc.Path, "/") {
		sc.Path = "/"
	}
	if c.MaxAge > 0 {
		sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return sc
}

func (c storedCookie) deleted(now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c storedCookie) httpCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		Expires:  c.Expires,
	}
	if !c.HostOnly {
		hc.Domain = c.Domain
	}
	return hc
}
