package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func worldProfiles(w *World) *stubProfiles {
	return w.profiles.(*stubProfiles)
}

func joinWorld(t *testing.T, w *World, id int64) (*Peer, *fakeEndpoint) {
	t.Helper()
	worldProfiles(w).profiles[id] = testProfile(id)
	ep := &fakeEndpoint{}
	p := NewPeer(ep)
	dispatch(w, p, MsgJoin, JoinMsg{PlayerID: id})
	if p.session == nil {
		t.Fatalf("join failed: %v", ep.sent)
	}
	return p, ep
}

// ---------- join ----------

func TestJoinCreatesSession(t *testing.T) {
	w := newTestWorld()
	_, observer := addTestPlayer(w, 9, 2000, 2000)

	p, ep := joinWorld(t, w, 1)

	if w.players[1] == nil {
		t.Fatal("session should be registered")
	}
	env, ok := ep.lastSent(MsgWelcome)
	if !ok {
		t.Fatal("welcome missing")
	}
	welcome := env.Data.(WelcomeMsg)
	if welcome.PlayerID != 1 || welcome.CID != p.cid {
		t.Errorf("welcome identity = %+v", welcome)
	}
	if welcome.MaxHP != BasePlayerHP || welcome.MaxShield != BasePlayerShield {
		t.Errorf("welcome vitals = %+v", welcome)
	}
	if !w.cfg.InBounds(welcome.X, welcome.Y) {
		t.Error("spawn must be inside the world")
	}
	if observer.countRaw(MsgPlayerJoined) != 1 {
		t.Error("arrival should be broadcast")
	}
}

func TestJoinNicknameOverrideTruncated(t *testing.T) {
	w := newTestWorld()
	worldProfiles(w).profiles[1] = testProfile(1)
	ep := &fakeEndpoint{}
	p := NewPeer(ep)

	dispatch(w, p, MsgJoin, JoinMsg{PlayerID: 1, Nickname: strings.Repeat("x", 40)})

	if p.session == nil {
		t.Fatal("join failed")
	}
	if len(p.session.Nickname) != maxNicknameLen {
		t.Errorf("nickname length = %d, want %d", len(p.session.Nickname), maxNicknameLen)
	}
}

func TestJoinRejectedWhileSessionActive(t *testing.T) {
	w := newTestWorld()
	worldProfiles(w).profiles[2] = testProfile(2)

	p, ep := joinWorld(t, w, 1)
	first := p.session

	// a second bootstrap on the same connection must not rebind the peer;
	// a rebound peer would leave the first session in the world with no
	// disconnect path
	dispatch(w, p, MsgJoin, JoinMsg{PlayerID: 2})

	if p.session != first {
		t.Fatal("peer must stay bound to its original session")
	}
	if w.players[2] != nil {
		t.Error("the second identity must not enter the world")
	}
	env, ok := ep.lastSent(MsgError)
	if !ok {
		t.Fatal("rejection reply missing")
	}
	if env.Data.(ErrorMsg).Code != ErrCodeAccessDenied {
		t.Errorf("code = %v, want %s", env.Data, ErrCodeAccessDenied)
	}

	// disconnect cleanup still tears down the only session
	w.RemoveSession(first)
	if len(w.players) != 0 {
		t.Errorf("%d session(s) remain after disconnect", len(w.players))
	}
}

func TestJoinProfileFailuresAreClassified(t *testing.T) {
	cases := []struct {
		class string
		code  string
	}{
		{ProfileErrNotFound, ErrCodeNotFound},
		{ProfileErrAccess, ErrCodeAccessDenied},
		{ProfileErrConnection, ErrCodeConnectionFailed},
		{ProfileErrSchema, ErrCodeSchemaMismatch},
	}
	for _, tc := range cases {
		w := newTestWorld()
		worldProfiles(w).loadErr = &ProfileError{Class: tc.class, Err: errors.New("boom")}
		ep := &fakeEndpoint{}
		p := NewPeer(ep)

		dispatch(w, p, MsgJoin, JoinMsg{PlayerID: 1})

		if p.session != nil {
			t.Fatalf("%s: no session may be created", tc.class)
		}
		if ep.closed {
			t.Errorf("%s: profile failures keep the connection open", tc.class)
		}
		env, ok := ep.lastSent(MsgError)
		if !ok {
			t.Fatalf("%s: error reply missing", tc.class)
		}
		if env.Data.(ErrorMsg).Code != tc.code {
			t.Errorf("%s: code = %v, want %s", tc.class, env.Data, tc.code)
		}
	}
}

func TestJoinRejectsInvalidToken(t *testing.T) {
	w := newTestWorld()
	w.auth = NewAuth(nil)
	ep := &fakeEndpoint{}
	p := NewPeer(ep)

	dispatch(w, p, MsgJoin, JoinMsg{Token: "not-a-jwt"})

	if p.session != nil {
		t.Fatal("invalid token must not create a session")
	}
	env, ok := ep.lastSent(MsgError)
	if !ok || env.Data.(ErrorMsg).Code != ErrCodeAccessDenied {
		t.Errorf("want %s, got %v", ErrCodeAccessDenied, ep.sent)
	}
}

func TestJoinWithValidToken(t *testing.T) {
	w := newTestWorld()
	w.auth = NewAuth(nil)
	worldProfiles(w).profiles[7] = testProfile(7)

	token, err := w.auth.GenerateToken(7)
	if err != nil {
		t.Fatal(err)
	}
	ep := &fakeEndpoint{}
	p := NewPeer(ep)

	// the token overrides any claimed player id
	dispatch(w, p, MsgJoin, JoinMsg{PlayerID: 999, Token: token})

	if p.session == nil || p.session.PlayerID != 7 {
		t.Fatalf("token identity should win, got %+v", p.session)
	}
}

// ---------- movement ----------

func TestPositionUpdateOutOfBoundsCloses(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	x, y := p.session.X, p.session.Y

	dispatch(w, p, MsgPositionUpdate, PositionMsg{X: -50, Y: 100})

	if !ep.closed || ep.reason != CloseInvalidPosition {
		t.Errorf("closed=%v reason=%q, want %s", ep.closed, ep.reason, CloseInvalidPosition)
	}
	if p.session.X != x || p.session.Y != y {
		t.Error("rejected update must not move the session")
	}
}

func TestPositionUpdateTeleportDropped(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	x, y := s.X, s.Y

	// a jump no configured speed could cover
	dispatch(w, p, MsgPositionUpdate, PositionMsg{X: x + 3000, Y: y})

	if ep.closed {
		t.Error("implausible movement is dropped, not punished")
	}
	if s.X != x || s.Y != y {
		t.Error("dropped update must not move the session")
	}
	if _, ok := ep.lastSent(MsgPositionAck); ok {
		t.Error("dropped update must not be acknowledged")
	}
}

func TestPositionUpdateAcceptedAndQueued(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	w.now = w.now.Add(100 * time.Millisecond)

	nx, ny := s.X+10, s.Y+5
	dispatch(w, p, MsgPositionUpdate, PositionMsg{X: nx, Y: ny, Rotation: 1.2})

	if s.X != nx || s.Y != ny {
		t.Errorf("position = (%f,%f), want (%f,%f)", s.X, s.Y, nx, ny)
	}
	if _, ok := ep.lastSent(MsgPositionAck); !ok {
		t.Error("accepted update should be acknowledged")
	}
	if queued, ok := w.pendingMoves[s.PlayerID]; !ok || queued.X != nx {
		t.Error("accepted update should be queued for the broadcast pass")
	}
}

// ---------- upgrades ----------

func TestSkillUpgradePurchase(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	creditsBefore := s.Inventory.Credits
	maxBefore := s.MaxHP

	dispatch(w, p, MsgSkillUpgrade, SkillUpgradeMsg{Skill: UpgradeHP})

	if s.Upgrades.HP != 1 {
		t.Fatalf("hp level = %d, want 1", s.Upgrades.HP)
	}
	wantCost := UpgradeCost(UpgradeCatalogMap[UpgradeHP], 0)
	if s.Inventory.Credits != creditsBefore-wantCost {
		t.Errorf("credits = %d, want %d", s.Inventory.Credits, creditsBefore-wantCost)
	}
	if s.MaxHP <= maxBefore {
		t.Error("hp upgrade should raise the ceiling")
	}
	if _, ok := ep.lastSent(MsgPlayerDataOut); !ok {
		t.Error("purchase should answer with updated player data")
	}
}

func TestSkillUpgradeRejections(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session

	dispatch(w, p, MsgSkillUpgrade, SkillUpgradeMsg{Skill: "warp"})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeInvalidUpgrade {
		t.Errorf("unknown track: got %v", env.Data)
	}

	s.Upgrades.Speed = MaxUpgradeLevel
	dispatch(w, p, MsgSkillUpgrade, SkillUpgradeMsg{Skill: UpgradeSpeed})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeMaxLevel {
		t.Errorf("max level: got %v", env.Data)
	}

	s.Inventory.Credits = 0
	dispatch(w, p, MsgSkillUpgrade, SkillUpgradeMsg{Skill: UpgradeDamage})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeInsufficient {
		t.Errorf("insufficient credits: got %v", env.Data)
	}
	if s.Upgrades.Damage != 0 {
		t.Error("rejected purchase must not change levels")
	}
}

// ---------- manual fire ----------

func TestManualFireValidations(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	s.X, s.Y = 2000, 2000
	s.LastGoodX, s.LastGoodY = s.X, s.Y

	dispatch(w, p, MsgProjectileFired, FireMsg{TargetID: "ghost"})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeTargetGone {
		t.Errorf("missing target: got %v", env.Data)
	}

	far := addTestNPC(w, "drifter", 2000+fireRange+100, 2000)
	dispatch(w, p, MsgProjectileFired, FireMsg{TargetID: far.ID})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeMissingTarget {
		t.Errorf("out of range: got %v", env.Data)
	}

	near := addTestNPC(w, "drifter", 2100, 2000)
	s.Inventory.Ammo = 0
	dispatch(w, p, MsgProjectileFired, FireMsg{TargetID: near.ID})
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeNoAmmo {
		t.Errorf("no ammo: got %v", env.Data)
	}

	s.Inventory.Ammo = 5
	dispatch(w, p, MsgProjectileFired, FireMsg{TargetID: near.ID})
	if len(w.projectiles) != 1 {
		t.Fatalf("projectiles = %d, want 1", len(w.projectiles))
	}
	if s.Inventory.Ammo != 4 {
		t.Errorf("ammo = %d, want 4", s.Inventory.Ammo)
	}
}

func TestManualFireBlockedInSafeZone(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	zone := w.cfg.SafeZones[0]
	s.X, s.Y = zone.X, zone.Y
	npc := addTestNPC(w, "drifter", zone.X+300, zone.Y)

	dispatch(w, p, MsgProjectileFired, FireMsg{TargetID: npc.ID})

	if len(w.projectiles) != 0 {
		t.Error("no fire from inside a safe zone")
	}
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeSafeZone {
		t.Errorf("got %v, want %s", env.Data, ErrCodeSafeZone)
	}
}

// ---------- respawn ----------

func TestRespawnRestoresDeadPlayer(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	s := p.session
	s.Alive = false
	s.HP = 0
	s.Shield = 0

	dispatch(w, p, MsgRespawn, nil)

	if !s.Alive || s.HP != s.MaxHP || s.Shield != s.MaxShield {
		t.Errorf("vitals after respawn: alive=%v hp=%d shield=%d", s.Alive, s.HP, s.Shield)
	}
	env, ok := ep.lastSent(MsgRespawnAck)
	if !ok {
		t.Fatal("respawn_ack missing")
	}
	ack := env.Data.(RespawnAckMsg)
	if !w.cfg.InBounds(ack.X, ack.Y) {
		t.Error("respawn position must be inside the world")
	}
}

func TestRespawnRejectedWhileAlive(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)

	dispatch(w, p, MsgRespawn, nil)

	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeNotDead {
		t.Errorf("got %v, want %s", env.Data, ErrCodeNotDead)
	}
}

// ---------- chat ----------

func TestChatRelayedWithinInterestRadius(t *testing.T) {
	w := newTestWorld()
	p, _ := joinWorld(t, w, 1)
	s := p.session
	s.X, s.Y = 2000, 2000

	_, near := addTestPlayer(w, 2, 2500, 2000)
	_, far := addTestPlayer(w, 3, 3900, 3900)

	dispatch(w, p, MsgChat, ChatMsg{Text: "  form up at the gate  "})

	if near.countRaw(MsgChatOut) != 1 {
		t.Error("nearby session should receive the chat line")
	}
	if far.countRaw(MsgChatOut) != 0 {
		t.Error("chat is interest-filtered")
	}
}

func TestChatTruncatedAndEmptyDropped(t *testing.T) {
	w := newTestWorld()
	p, _ := joinWorld(t, w, 1)
	p.session.X, p.session.Y = 2000, 2000
	_, near := addTestPlayer(w, 2, 2100, 2000)

	dispatch(w, p, MsgChat, ChatMsg{Text: "   "})
	if near.countRaw(MsgChatOut) != 0 {
		t.Error("blank chat is dropped")
	}

	dispatch(w, p, MsgChat, ChatMsg{Text: strings.Repeat("a", maxChatLen+50)})
	if near.countRaw(MsgChatOut) != 1 {
		t.Fatal("long chat should still relay")
	}
	var out ChatOutMsg
	for _, env := range near.raw {
		if env.T == MsgChatOut {
			mustUnmarshal(t, env.D, &out)
		}
	}
	if len(out.Text) != maxChatLen {
		t.Errorf("text length = %d, want truncation to %d", len(out.Text), maxChatLen)
	}
}

// ---------- leaderboard / save ----------

func TestLeaderboardFallsBackOnce(t *testing.T) {
	w := newTestWorld()
	sp := worldProfiles(w)
	sp.lbErr = errors.New("no such column: bananas")
	sp.entries = []LeaderboardEntry{{Rank: 1, Nickname: "ace"}}
	p, ep := joinWorld(t, w, 1)

	dispatch(w, p, MsgLeaderboard, LeaderboardReqMsg{OrderBy: "bananas"})

	if len(sp.lbCalls) != 2 || sp.lbCalls[1] != "" {
		t.Errorf("calls = %v, want the failing query retried with defaults", sp.lbCalls)
	}
	if _, ok := ep.lastSent(MsgLeaderboardData); !ok {
		t.Error("fallback result should be delivered")
	}
}

func TestSaveAckAndFailure(t *testing.T) {
	w := newTestWorld()
	sp := worldProfiles(w)
	p, ep := joinWorld(t, w, 1)

	dispatch(w, p, MsgSave, nil)
	if _, ok := ep.lastSent(MsgSaveAck); !ok {
		t.Error("successful save should be acknowledged")
	}
	if sp.saves != 1 {
		t.Errorf("saves = %d, want 1", sp.saves)
	}

	sp.saveErr = &ProfileError{Class: ProfileErrConnection, Err: errors.New("down")}
	dispatch(w, p, MsgSave, nil)
	if env, _ := ep.lastSent(MsgError); env.Data.(ErrorMsg).Code != ErrCodeSaveFailed {
		t.Errorf("got %v, want %s", env.Data, ErrCodeSaveFailed)
	}
}

// ---------- monitor ----------

func TestMonitorRequiresAdmin(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)

	dispatch(w, p, MsgMonitor, nil)

	if !ep.closed || ep.reason != CloseIdentityMismatch {
		t.Errorf("closed=%v reason=%q, a forged monitor is a probe", ep.closed, ep.reason)
	}
}

func TestMonitorReportsToAdmin(t *testing.T) {
	w := newTestWorld()
	p, ep := joinWorld(t, w, 1)
	p.session.Admin = true
	addTestNPC(w, "drifter", 2500, 2500)

	dispatch(w, p, MsgMonitor, nil)

	env, ok := ep.lastSent(MsgMonitorReport)
	if !ok {
		t.Fatal("admin should get the report")
	}
	report := env.Data.(MonitorReportMsg)
	if report.Players != 1 || report.NPCs != 1 {
		t.Errorf("report = %+v", report)
	}
}
