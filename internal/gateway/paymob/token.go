package paymob

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type loaderState int

const (
	stateUnloaded loaderState = iota
	stateLoading
	stateLoaded
)

// tokenLoader fetches the merchant auth token once and shares it until it expires.
// Concurrent callers during a fetch wait on the same in-flight request.
type tokenLoader struct {
	fetch func(ctx context.Context) (string, error)
	ttl   time.Duration
	now   func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	state     loaderState
	token     string
	expiresAt time.Time
}

func newTokenLoader(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *tokenLoader {
	return &tokenLoader{fetch: fetch, ttl: ttl, now: time.Now}
}

func (l *tokenLoader) Token(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.state == stateLoaded && l.now().Before(l.expiresAt) {
		token := l.token
		l.mu.Unlock()
		return token, nil
	}
	l.state = stateLoading
	l.mu.Unlock()

	v, err, _ := l.group.Do("token", func() (any, error) {
		l.mu.Lock()
		if l.token != "" && l.now().Before(l.expiresAt) {
			token := l.token
			l.state = stateLoaded
			l.mu.Unlock()
			return token, nil
		}
		l.mu.Unlock()

		// The flight is shared, so one caller's cancellation must not fail the rest.
		token, err := l.fetch(context.WithoutCancel(ctx))
		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			l.state = stateUnloaded
			return "", err
		}
		l.state = stateLoaded
		l.token = token
		l.expiresAt = l.now().Add(l.ttl)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate forces the next Token call to fetch again.
func (l *tokenLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = stateUnloaded
	l.token = ""
	l.expiresAt = time.Time{}
}
