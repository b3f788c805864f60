package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/gridmatch/logger"
)

// ManagerConfig holds the session manager settings.
type ManagerConfig struct {
	// ReconnectInterval is how often Start reconciles. Zero disables the loop.
	ReconnectInterval time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{ReconnectInterval: 5 * time.Second}
}

// Manager owns the PotentialSessions of a process and binds each agent to the
// matcher it names as desired parent.
type Manager struct {
	cfg ManagerConfig
	log *logrus.Entry

	mu         sync.Mutex
	matchers   map[string]MatcherEndpoint
	potentials map[string]*PotentialSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates an empty manager. A nil log uses the default logger.
func NewManager(cfg ManagerConfig, log *logrus.Entry) *Manager {
	if log == nil {
		log = logger.Component("session")
	}
	return &Manager{
		cfg:        cfg,
		log:        log,
		matchers:   make(map[string]MatcherEndpoint),
		potentials: make(map[string]*PotentialSession),
	}
}

// AddMatcher registers a matcher and binds every agent waiting for it.
func (m *Manager) AddMatcher(matcher MatcherEndpoint) error {
	id := matcher.MatcherID()

	m.mu.Lock()
	if _, exists := m.matchers[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: matcher %s", ErrDuplicateEndpoint, id)
	}
	m.matchers[id] = matcher
	for _, p := range m.potentials {
		if p.DesiredParentID() == id {
			p.Bind(matcher)
		}
	}
	m.mu.Unlock()

	m.log.WithField("matcher_id", id).Info("matcher added")
	m.Reconcile()
	return nil
}

// RemoveMatcher unregisters a matcher and disconnects every agent bound to it.
func (m *Manager) RemoveMatcher(id string) {
	m.mu.Lock()
	matcher, ok := m.matchers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.matchers, id)
	var bound []*PotentialSession
	for _, p := range m.potentials {
		if p.Matcher() == matcher {
			bound = append(bound, p)
		}
	}
	m.mu.Unlock()

	for _, p := range bound {
		p.Unbind()
	}
	m.log.WithFields(logrus.Fields{"matcher_id": id, "agents": len(bound)}).Info("matcher removed")
}

// AddAgent registers an agent and tries to connect it to its desired parent.
func (m *Manager) AddAgent(agent AgentEndpoint) (*PotentialSession, error) {
	id := agent.AgentID()

	m.mu.Lock()
	if _, exists := m.potentials[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: agent %s", ErrDuplicateEndpoint, id)
	}
	p := NewPotentialSession(agent, m.log)
	if matcher, ok := m.matchers[agent.DesiredParentID()]; ok {
		p.Bind(matcher)
	}
	m.potentials[id] = p
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"agent_id": id, "desired_parent": agent.DesiredParentID()}).Info("agent added")
	m.Reconcile()
	return p, nil
}

// RemoveAgent disconnects and forgets an agent.
func (m *Manager) RemoveAgent(id string) {
	m.mu.Lock()
	p, ok := m.potentials[id]
	delete(m.potentials, id)
	m.mu.Unlock()

	if ok {
		p.Unbind()
		m.log.WithField("agent_id", id).Info("agent removed")
	}
}

// Potential returns the PotentialSession of an agent.
func (m *Manager) Potential(agentID string) (*PotentialSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.potentials[agentID]
	return p, ok
}

// Reconcile calls TryConnect on every PotentialSession until no more sessions
// come up, so a Concentrator connected in one pass lets its children connect in
// the next. It returns the number of sessions created.
func (m *Manager) Reconcile() int {
	connected := 0
	potentials := m.snapshot()
	// A tree of n agents needs at most n passes.
	for pass := 0; pass <= len(potentials); pass++ {
		progress := 0
		for _, p := range potentials {
			if p.TryConnect() {
				progress++
			}
		}
		connected += progress
		if progress == 0 {
			break
		}
	}
	return connected
}

// Sessions returns the live sessions ordered by agent id.
func (m *Manager) Sessions() []*Session {
	var sessions []*Session
	for _, p := range m.snapshot() {
		if s := p.Session(); s != nil {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func (m *Manager) snapshot() []*PotentialSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PotentialSession, 0, len(m.potentials))
	for _, p := range m.potentials {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID() < out[j].AgentID() })
	return out
}

// Start launches the periodic reconcile loop.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	if m.cfg.ReconnectInterval <= 0 {
		return nil
	}

	m.wg.Add(1)
	go m.run()

	m.log.WithField("interval", m.cfg.ReconnectInterval).Info("session manager started")
	return nil
}

// Stop ends the reconcile loop and disconnects every session.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, p := range m.snapshot() {
		p.Disconnect()
	}
	m.log.Info("session manager stopped")
	return nil
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reconcile(); n > 0 {
				m.log.WithField("sessions", n).Info("reconnected sessions")
			}
		}
	}
}
