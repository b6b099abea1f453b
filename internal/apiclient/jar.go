package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/mycloud-app/mycloud/internal/credstore"
)

// PersistentJar is a cookie jar whose cookies for the API host survive
// process restarts through the credential store.
type PersistentJar struct {
	mu    sync.Mutex
	jar   *cookiejar.Jar
	base  *url.URL
	store credstore.Store
	saved map[string]string
}

// NewPersistentJar restores previously saved cookies for baseURL.
func NewPersistentJar(ctx context.Context, store credstore.Store, baseURL string) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &PersistentJar{jar: jar, base: base, store: store, saved: make(map[string]string)}

	raw, err := credstore.Lookup(ctx, store, credstore.KeySessionCookies)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.saved); err != nil {
			return nil, fmt.Errorf("decode saved cookies: %w", err)
		}
		root := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
		cookies := make([]*http.Cookie, 0, len(j.saved))
		for name, value := range j.saved {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		}
		jar.SetCookies(root, cookies)
	}
	return j, nil
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	if u.Host != j.base.Host {
		return
	}

	now := time.Now()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.saved, c.Name)
			continue
		}
		j.saved[c.Name] = c.Value
	}
	j.persist()
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear drops every cookie, in memory and on disk.
func (j *PersistentJar) Clear(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = jar
	j.saved = make(map[string]string)
	return j.store.Delete(ctx, credstore.KeySessionCookies)
}

// persist is best effort; http.CookieJar has no way to report errors.
func (j *PersistentJar) persist() {
	if len(j.saved) == 0 {
		_ = j.store.Delete(context.Background(), credstore.KeySessionCookies)
		return
	}
	raw, err := json.Marshal(j.saved)
	if err != nil {
		return
	}
	_ = j.store.Set(context.Background(), credstore.KeySessionCookies, string(raw))
}
