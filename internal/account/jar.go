// ABOUTME: Cookie jar that mirrors the gateway's credential cookies into the store
// ABOUTME: Loaded on construction so a new process resumes an existing session

package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/2389/lamp/internal/store"
)

// PersistentJar is an http.CookieJar for a single gateway host whose cookies
// survive restarts.
type PersistentJar struct {
	mu      sync.RWMutex
	jar     *cookiejar.Jar
	base    *url.URL
	cookies store.CookieStore
	logger  *slog.Logger

	// attrs keeps what the server sent for each cookie name. The stdlib jar
	// only hands back name and value.
	attrs map[string]store.Cookie
}

// NewPersistentJar creates a jar for base and preloads stored cookies.
// A nil cookie store gives an in-memory jar.
func NewPersistentJar(ctx context.Context, base *url.URL, cookies store.CookieStore, logger *slog.Logger) (*PersistentJar, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	j := &PersistentJar{
		jar:     jar,
		base:    base,
		cookies: cookies,
		logger:  logger.With("component", "cookiejar"),
		attrs:   make(map[string]store.Cookie),
	}

	if cookies == nil {
		return j, nil
	}
	stored, err := cookies.LoadCookies(ctx, base.Host)
	if err != nil {
		return nil, fmt.Errorf("loading cookies: %w", err)
	}
	now := time.Now()
	httpCookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Expires != nil && c.Expires.Before(now) {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires != nil {
			hc.Expires = *c.Expires
		}
		httpCookies = append(httpCookies, hc)
		j.attrs[c.Name] = *c
	}
	jar.SetCookies(base, httpCookies)
	j.logger.Debug("restored cookies", "host", base.Host, "count", len(httpCookies))
	return j, nil
}

// SetCookies records cookies in memory and writes the merged set through to
// the store. Store failures are logged; the in-memory jar still updates.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	if j.cookies == nil || u.Host != j.base.Host {
		return
	}

	now := time.Now()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now)) {
			delete(j.attrs, c.Name)
			continue
		}
		j.attrs[c.Name] = cookieAttrs(j.base.Host, c, now)
	}

	current := j.jar.Cookies(j.base)
	rows := make([]*store.Cookie, 0, len(current))
	for _, c := range current {
		row, ok := j.attrs[c.Name]
		if !ok {
			row = store.Cookie{Host: j.base.Host, Name: c.Name, Path: "/"}
		}
		row.Value = c.Value
		rows = append(rows, &row)
	}
	if err := j.cookies.ReplaceCookies(context.Background(), j.base.Host, rows); err != nil {
		j.logger.Warn("failed to persist cookies", "error", err)
	}
}

// cookieAttrs converts a Set-Cookie into the row kept for it. MaxAge wins
// over Expires, as in RFC 6265.
func cookieAttrs(host string, c *http.Cookie, now time.Time) store.Cookie {
	row := store.Cookie{
		Host:     host,
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if row.Path == "" {
		row.Path = "/"
	}
	switch {
	case c.MaxAge > 0:
		t := now.Add(time.Duration(c.MaxAge) * time.Second)
		row.Expires = &t
	case !c.Expires.IsZero():
		t := c.Expires
		row.Expires = &t
	}
	return row
}

// Cookies returns the cookies to send to u.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Value returns the value of the named cookie for the gateway host, or "".
func (j *PersistentJar) Value(name string) string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, c := range j.jar.Cookies(j.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Clear drops every cookie, in memory and in the store.
func (j *PersistentJar) Clear(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	j.mu.Lock()
	j.jar = jar
	j.attrs = make(map[string]store.Cookie)
	j.mu.Unlock()
	if j.cookies == nil {
		return nil
	}
	return j.cookies.ClearCookies(ctx, j.base.Host)
}
