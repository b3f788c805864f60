package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// State of a PotentialSession.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// PotentialSession is the intent of an agent to connect to its desired parent.
// Connecting and disconnecting are serialized per PotentialSession: there is at
// most one Session at a time and it is only installed once fully wired.
type PotentialSession struct {
	agent AgentEndpoint
	log   *logrus.Entry

	mu      sync.Mutex
	matcher MatcherEndpoint
	session *Session
}

// NewPotentialSession creates an unbound PotentialSession for agent.
func NewPotentialSession(agent AgentEndpoint, log *logrus.Entry) *PotentialSession {
	return &PotentialSession{
		agent: agent,
		log:   log.WithField("agent_id", agent.AgentID()),
	}
}

func (p *PotentialSession) AgentID() string         { return p.agent.AgentID() }
func (p *PotentialSession) DesiredParentID() string { return p.agent.DesiredParentID() }
func (p *PotentialSession) Agent() AgentEndpoint    { return p.agent }

// Matcher returns the bound matcher, or nil.
func (p *PotentialSession) Matcher() MatcherEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matcher
}

// Session returns the live session, or nil.
func (p *PotentialSession) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *PotentialSession) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.session != nil:
		return StateConnected
	case p.matcher != nil:
		return StateBound
	default:
		return StateUnbound
	}
}

// Bind records the matcher the agent should connect to. It does not connect.
func (p *PotentialSession) Bind(matcher MatcherEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matcher = matcher
}

// Unbind forgets the matcher and disconnects the current session, if any.
func (p *PotentialSession) Unbind() {
	p.mu.Lock()
	p.matcher = nil
	s := p.session
	p.mu.Unlock()

	if s != nil {
		s.Disconnect()
	}
}

// TryConnect wires a new session when the matcher is bound and connected and no
// session exists. It reports whether a session was installed.
func (p *PotentialSession) TryConnect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil || p.matcher == nil || !p.matcher.IsConnected() {
		return false
	}

	matcher := p.matcher
	s := newSession(p.agent, matcher, p, p.log)

	if err := matcher.ConnectToAgent(s); err != nil {
		s.log.WithError(err).Warn("matcher refused session")
		s.abort()
		return false
	}
	if err := p.agent.ConnectToMatcher(s); err != nil {
		s.log.WithError(err).Warn("agent refused session")
		s.abort()
		matcher.AgentEndpointDisconnected(s)
		return false
	}
	if !s.activate() {
		s.log.Warn("session disconnected while wiring")
		matcher.AgentEndpointDisconnected(s)
		p.agent.MatcherEndpointDisconnected(s)
		return false
	}

	p.session = s
	s.log.WithField("cluster_id", s.ClusterID()).Info("session connected")
	return true
}

// Disconnect ends the current session, if any. The matcher stays bound.
func (p *PotentialSession) Disconnect() {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()

	if s != nil {
		s.Disconnect()
	}
}

func (p *PotentialSession) sessionDisconnected(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == s {
		p.session = nil
	}
}
