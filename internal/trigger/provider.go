package trigger

import (
	"fmt"
	"sync"
	"time"
)

// Scope defines which sessions share an Engine.
type Scope string

const (
	// ScopeGlobal shares one Engine between all sessions.
	ScopeGlobal Scope = "global"
	// ScopeSession creates an Engine per session.
	ScopeSession Scope = "session"
)

// Provider hands out the Engine responsible for a session.
type Provider struct {
	scope       Scope
	opts        []Option
	cooldown    time.Duration
	probability float64
	shared      *Engine
	engines     map[string]*Engine
	mutex       sync.Mutex
}

// NewProvider creates a Provider for the given scope.
// The options are applied to every Engine it creates.
func NewProvider(scope Scope, opts ...Option) (*Provider, error) {
	if scope == "" {
		scope = ScopeGlobal
	}

	if scope != ScopeGlobal && scope != ScopeSession {
		return nil, fmt.Errorf("unsupported trigger scope %q, supported scopes are %s and %s", scope, ScopeGlobal, ScopeSession)
	}

	p := &Provider{
		scope:       scope,
		opts:        opts,
		cooldown:    DefaultCooldown,
		probability: DefaultProbability,
		engines:     map[string]*Engine{},
	}
	p.shared = p.newEngine()

	return p, nil
}

func (p *Provider) newEngine() *Engine {
	e := New(p.opts...)
	e.SetCooldown(p.cooldown)
	e.SetProbability(p.probability)
	return e
}

// Scope returns the configured scope.
func (p *Provider) Scope() Scope {
	return p.scope
}

// Key returns the identifier of the Engine group the session belongs to.
func (p *Provider) Key(sessionID string) string {
	if p.scope == ScopeGlobal {
		return ""
	}

	return sessionID
}

// Engine returns the Engine of the given session, creating it if necessary.
func (p *Provider) Engine(sessionID string) *Engine {
	if p.scope == ScopeGlobal {
		return p.shared
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	e, ok := p.engines[sessionID]
	if !ok {
		e = p.newEngine()
		p.engines[sessionID] = e
	}

	return e
}

// Release forgets the Engine of a closed session.
func (p *Provider) Release(sessionID string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	delete(p.engines, sessionID)
}

// Configure applies the cooldown and probability to all current and future engines.
func (p *Provider) Configure(cooldown time.Duration, probability float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.cooldown = cooldown
	p.probability = probability

	p.shared.SetCooldown(cooldown)
	p.shared.SetProbability(probability)

	for _, e := range p.engines {
		e.SetCooldown(cooldown)
		e.SetProbability(probability)
	}
}

// ResetAll deactivates the cooldown of every engine.
func (p *Provider) ResetAll() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.shared.ResetCooldown()

	for _, e := range p.engines {
		e.ResetCooldown()
	}
}
