package main

import (
	"encoding/json"
	"testing"
	"time"
)

func dispatch(w *World, p *Peer, msgType string, data interface{}) {
	env := InEnvelope{T: msgType}
	if data != nil {
		raw, _ := json.Marshal(data)
		env.D = raw
	}
	w.router.Dispatch(p, env)
}

func TestGateClosesWithoutSession(t *testing.T) {
	w := newTestWorld()
	ep := &fakeEndpoint{}
	p := NewPeer(ep)

	dispatch(w, p, MsgHeartbeat, nil)

	if !ep.closed || ep.reason != CloseNoSession {
		t.Errorf("closed=%v reason=%q, want policy close %s", ep.closed, ep.reason, CloseNoSession)
	}
}

func TestGateClosesOnConnectionIDMismatch(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	w.router.Dispatch(p, InEnvelope{T: MsgPlayerData, CID: "forged-cid"})

	if !ep.closed || ep.reason != CloseIdentityMismatch {
		t.Errorf("closed=%v reason=%q, want policy close %s", ep.closed, ep.reason, CloseIdentityMismatch)
	}
}

func TestGateAcceptsCanonicalConnectionID(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	// the canonical id derived from the player id is valid during
	// reconnection races
	w.router.Dispatch(p, InEnvelope{T: MsgHeartbeat, CID: s.Key()})

	if ep.closed {
		t.Fatal("canonical connection id must pass the gate")
	}
	if _, ok := ep.lastSent(MsgHeartbeatAck); !ok {
		t.Error("heartbeat should be acknowledged")
	}
}

func TestGateDropsStaleHeartbeatSilently(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	w.router.Dispatch(p, InEnvelope{T: MsgHeartbeat, CID: "stale-cid"})

	if ep.closed {
		t.Error("a stale heartbeat is a reconnect artifact, not an attack")
	}
	if _, ok := ep.lastSent(MsgHeartbeatAck); ok {
		t.Error("a dropped heartbeat must not be acknowledged")
	}
}

func TestGateClosesOnPlayerIDMismatch(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	w.router.Dispatch(p, InEnvelope{T: MsgPlayerData, PID: 42})

	if !ep.closed || ep.reason != CloseIdentityMismatch {
		t.Errorf("closed=%v reason=%q, want policy close %s", ep.closed, ep.reason, CloseIdentityMismatch)
	}
}

func TestGateClosesDeadPlayerActions(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	s.Alive = false
	p := testPeer(s, ep)

	dispatch(w, p, MsgPositionUpdate, PositionMsg{X: 2000, Y: 2000})

	if !ep.closed || ep.reason != CloseDeadAction {
		t.Errorf("closed=%v reason=%q, want policy close %s", ep.closed, ep.reason, CloseDeadAction)
	}
}

func TestDeadPlayerMayStillHeartbeatAndRespawn(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	s.Alive = false
	s.HP = 0
	p := testPeer(s, ep)

	dispatch(w, p, MsgHeartbeat, nil)
	if ep.closed {
		t.Fatal("heartbeat is not death-restricted")
	}

	dispatch(w, p, MsgRespawn, nil)
	if ep.closed {
		t.Fatal("respawn request is not death-restricted")
	}
	if !s.Alive {
		t.Error("respawn should revive the session")
	}
}

func TestMessageCeilingClosesConnection(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	s.MsgWindowStart = w.now
	s.MsgCount = msgCeiling
	p := testPeer(s, ep)

	dispatch(w, p, MsgHeartbeat, nil)

	if !ep.closed || ep.reason != CloseRateLimit {
		t.Errorf("closed=%v reason=%q, want policy close %s", ep.closed, ep.reason, CloseRateLimit)
	}
}

func TestMessageCeilingWindowSlides(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	s.MsgWindowStart = w.now.Add(-msgWindow - time.Second)
	s.MsgCount = msgCeiling
	p := testPeer(s, ep)

	dispatch(w, p, MsgHeartbeat, nil)

	if ep.closed {
		t.Error("an expired window must reset the counter")
	}
	if s.MsgCount != 1 {
		t.Errorf("count = %d, want 1 after the window reset", s.MsgCount)
	}
}

func TestMovementCapDropsExcess(t *testing.T) {
	w := newTestWorld()
	s, _ := addTestPlayer(w, 1, 2000, 2000)
	now := w.now

	allowed := 0
	for i := 0; i < moveCeiling+1; i++ {
		if allowMove(s, now) {
			allowed++
		}
	}
	if allowed != moveCeiling {
		t.Errorf("allowed = %d, want exactly %d per second", allowed, moveCeiling)
	}

	// next second: cap resets
	if !allowMove(s, now.Add(moveWindowLen+time.Millisecond)) {
		t.Error("a new window should admit movement again")
	}
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	w.router.Dispatch(p, InEnvelope{T: "warp_drive_engage"})

	if ep.closed {
		t.Error("unknown types are dropped, not punished")
	}
	if len(ep.sent) != 0 {
		t.Error("unknown types get no reply")
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	w := newTestWorld()
	s, ep := addTestPlayer(w, 1, 2000, 2000)
	p := testPeer(s, ep)

	w.router.handlers["detonate"] = func(w *World, p *Peer, env InEnvelope) {
		panic("boom")
	}

	w.router.Dispatch(p, InEnvelope{T: "detonate"})

	if ep.closed {
		t.Error("a handler fault must not take the connection down")
	}
	env, ok := ep.lastSent(MsgError)
	if !ok {
		t.Fatal("client should get a generic error")
	}
	if env.Data.(ErrorMsg).Code != ErrCodeInternal {
		t.Errorf("code = %v, want %s", env.Data, ErrCodeInternal)
	}
}
