package main

import (
	"log"
	"time"
)

const (
	msgWindow     = time.Minute
	msgCeiling    = 1200 // messages per sliding window before disconnect
	moveWindowLen = time.Second
	moveCeiling   = 50 // movement updates per second; excess silently dropped
)

// Peer binds a transport endpoint to its world-side session state. Live
// connections wrap a *Client; tests build peers around fake endpoints.
// All peer mutation happens on the world goroutine.
type Peer struct {
	ep      Endpoint
	cid     string // issued at upgrade, echoed back by the client
	session *PlayerSession
}

// NewPeer creates a peer for an endpoint with a fresh connection id
func NewPeer(ep Endpoint) *Peer {
	return &Peer{ep: ep, cid: GenerateID(8)}
}

type msgHandler func(w *World, p *Peer, env InEnvelope)

// Router maps message types to handlers behind the security gate
type Router struct {
	world           *World
	handlers        map[string]msgHandler
	deathRestricted map[string]bool
}

// NewRouter builds the fixed dispatch table
func NewRouter(w *World) *Router {
	r := &Router{
		world: w,
		deathRestricted: map[string]bool{
			MsgPositionUpdate:  true,
			MsgProjectileFired: true,
			MsgStartCombat:     true,
			MsgSkillUpgrade:    true,
			MsgChat:            true,
		},
	}
	r.handlers = map[string]msgHandler{
		MsgJoin:             handleJoin,
		MsgPositionUpdate:   handlePositionUpdate,
		MsgHeartbeat:        handleHeartbeat,
		MsgSkillUpgrade:     handleSkillUpgrade,
		MsgProjectileFired:  handleProjectileFired,
		MsgStartCombat:      handleStartCombat,
		MsgStopCombat:       handleStopCombat,
		MsgExplosionCreated: handleExplosionCreated,
		MsgLeaderboard:      handleLeaderboard,
		MsgPlayerData:       handlePlayerData,
		MsgChat:             handleChat,
		MsgSave:             handleSave,
		MsgRespawn:          handleRespawn,
		MsgMonitor:          handleMonitor,
	}
	return r
}

// Dispatch validates and routes one inbound message. Runs on the world
// goroutine. Handler panics are contained: the client gets a generic
// internal error and the tick loop keeps running.
func (r *Router) Dispatch(p *Peer, env InEnvelope) {
	h, ok := r.handlers[env.T]
	if !ok {
		log.Printf("unknown message type %q", env.T)
		return
	}

	// the gate is skipped only for the bootstrap join and the privileged
	// monitoring message (which does its own admin check)
	if env.T != MsgJoin && env.T != MsgMonitor {
		if !r.validate(p, env) {
			return
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("handler %s panic: %v", env.T, rec)
			p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeInternal}})
		}
	}()
	h(r.world, p, env)
}

// validate enforces the pre-dispatch checks in order. Returns false when
// the message must not reach its handler; protocol violations also close
// the connection with policy code 1008.
func (r *Router) validate(p *Peer, env InEnvelope) bool {
	now := r.world.now

	// (1) the sender must already have a session
	s := p.session
	if s == nil || r.world.players[s.PlayerID] != s {
		p.ep.CloseWithPolicy(CloseNoSession)
		return false
	}

	// (2) claimed connection id must match, accepting the canonical id
	// derived from the stable player id (reconnection races). Heartbeats
	// can be stale during reconnects: dropped, not a security concern.
	if env.CID != "" && env.CID != p.cid && env.CID != s.Key() {
		if env.T == MsgHeartbeat {
			return false
		}
		p.ep.CloseWithPolicy(CloseIdentityMismatch)
		return false
	}

	// (3) a carried player id must match the session's
	if env.PID != 0 && env.PID != s.PlayerID {
		p.ep.CloseWithPolicy(CloseIdentityMismatch)
		return false
	}

	// (4) dead sessions cannot act on the death-restricted list
	if r.deathRestricted[env.T] && !s.Alive {
		p.ep.CloseWithPolicy(CloseDeadAction)
		return false
	}

	// (5) sliding one-minute ceiling; exceeding it closes the connection
	if now.Sub(s.MsgWindowStart) >= msgWindow {
		s.MsgWindowStart = now
		s.MsgCount = 0
	}
	s.MsgCount++
	if s.MsgCount > msgCeiling {
		log.Printf("player %d exceeded message ceiling, disconnecting", s.PlayerID)
		p.ep.CloseWithPolicy(CloseRateLimit)
		return false
	}

	s.LastInput = now
	return true
}

// allowMove applies the movement-specific per-second cap. Excess updates
// are dropped, never queued, and leave session state untouched.
func allowMove(s *PlayerSession, now time.Time) bool {
	if now.Sub(s.MoveWindowStart) >= moveWindowLen {
		s.MoveWindowStart = now
		s.MoveCount = 0
	}
	s.MoveCount++
	return s.MoveCount <= moveCeiling
}
