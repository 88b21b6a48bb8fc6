package executor

import (
	"context"
	"sync"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/session"
	"github.com/devicelab-dev/gherkin-runner/pkg/steps"
)

// webdriverOpener opens WebDriver sessions for cfg's target.
func webdriverOpener(cfg *config.Config) steps.Opener {
	return func(ctx context.Context) (steps.Session, error) {
		s, err := session.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// sessionPool hands sessions to scenarios. Unshared, every scenario opens
// its own. Shared, scenarios reuse one session until a step closes it or
// the run ends.
type sessionPool struct {
	open   steps.Opener
	shared bool

	mu   sync.Mutex
	live *pooledSession
}

func newSessionPool(open steps.Opener, shared bool) *sessionPool {
	return &sessionPool{open: open, shared: shared}
}

func (p *sessionPool) opener() steps.Opener {
	if !p.shared {
		return p.open
	}
	return func(ctx context.Context) (steps.Session, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.live != nil {
			return p.live, nil
		}
		s, err := p.open(ctx)
		if err != nil {
			return nil, err
		}
		p.live = &pooledSession{Session: s, pool: p}
		return p.live, nil
	}
}

// Close ends the shared session, if one is open.
func (p *sessionPool) Close(ctx context.Context) error {
	p.mu.Lock()
	live := p.live
	p.live = nil
	p.mu.Unlock()
	if live == nil {
		return nil
	}
	return live.Session.Close(ctx)
}

// pooledSession drops out of the pool when a step closes it, so the next
// scenario opens a fresh one.
type pooledSession struct {
	steps.Session
	pool *sessionPool
}

func (s *pooledSession) Close(ctx context.Context) error {
	s.pool.mu.Lock()
	if s.pool.live == s {
		s.pool.live = nil
	}
	s.pool.mu.Unlock()
	return s.Session.Close(ctx)
}
