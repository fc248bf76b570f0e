package main

import (
	"testing"
	"time"
)

func newTestSession(id int64) *PlayerSession {
	return NewPlayerSession(testProfile(id), canonicalCID(id), &fakeEndpoint{}, time.Now())
}

func TestPlayerTakeDamageShieldAbsorbsFirst(t *testing.T) {
	s := newTestSession(1)

	if s.TakeDamage(500) {
		t.Fatal("non-lethal hit reported lethal")
	}
	if s.Shield != BasePlayerShield-500 || s.HP != BasePlayerHP {
		t.Errorf("shield=%d hp=%d, shield must absorb before health", s.Shield, s.HP)
	}

	// overflow spills into health
	s.TakeDamage(BasePlayerShield)
	if s.Shield != 0 {
		t.Errorf("shield = %d, want 0", s.Shield)
	}
	if s.HP != BasePlayerHP-500 {
		t.Errorf("hp = %d, want %d", s.HP, BasePlayerHP-500)
	}
}

func TestPlayerTakeDamageLethalNeverNegative(t *testing.T) {
	s := newTestSession(1)
	s.HP, s.Shield = 30, 10

	if !s.TakeDamage(99999) {
		t.Fatal("overkill should be lethal")
	}
	if s.HP != 0 || s.Shield != 0 {
		t.Errorf("hp=%d shield=%d, vitals never go negative", s.HP, s.Shield)
	}
	if s.Alive {
		t.Error("lethal damage should mark the session dead")
	}
	if s.TakeDamage(100) {
		t.Error("the dead take no further damage")
	}
}

func TestEffectivePositionPrefersFreshClientReport(t *testing.T) {
	s := newTestSession(1)
	now := time.Now()
	s.X, s.Y = 1000, 1000
	s.ClientX, s.ClientY = 1080, 1000 // within drift bound
	s.ClientPosAt = now.Add(-100 * time.Millisecond)

	x, y := s.EffectivePosition(now)
	if x != 1080 || y != 1000 {
		t.Errorf("effective = (%f,%f), want the fresh client report", x, y)
	}
}

func TestEffectivePositionRejectsStaleOrDrifted(t *testing.T) {
	s := newTestSession(1)
	now := time.Now()
	s.X, s.Y = 1000, 1000

	// stale report
	s.ClientX, s.ClientY = 1080, 1000
	s.ClientPosAt = now.Add(-clientPosMaxAge - 50*time.Millisecond)
	if x, _ := s.EffectivePosition(now); x != 1000 {
		t.Errorf("stale client report must lose to the server position, got %f", x)
	}

	// excessive drift
	s.ClientX = 1000 + clientPosMaxDrift + 10
	s.ClientPosAt = now
	if x, _ := s.EffectivePosition(now); x != 1000 {
		t.Errorf("drifted client report must lose to the server position, got %f", x)
	}
}

func TestMaxMoveDistanceFloorsElapsed(t *testing.T) {
	s := newTestSession(1)

	// bursts collapse elapsed toward zero; the floor keeps the bound sane
	atFloor := s.MaxMoveDistance(0)
	if atFloor != s.MaxSpeed()*0.05*teleportJitterMul {
		t.Errorf("floored bound = %f", atFloor)
	}
	long := s.MaxMoveDistance(2 * time.Second)
	if long != s.MaxSpeed()*2*teleportJitterMul {
		t.Errorf("bound over 2s = %f", long)
	}
}

func TestMaxSpeedIncludesUpgrades(t *testing.T) {
	s := newTestSession(1)
	base := s.MaxSpeed()
	s.Upgrades.Speed = 4
	if s.MaxSpeed() != base+4*UpgradeCatalogMap[UpgradeSpeed].PerLevel {
		t.Errorf("speed = %f, want upgrade bonus applied", s.MaxSpeed())
	}
}

func TestRespawnRestoresFullVitals(t *testing.T) {
	s := newTestSession(1)
	s.TakeDamage(99999)

	s.Respawn(700, 800)

	if !s.Alive || s.HP != s.MaxHP || s.Shield != s.MaxShield {
		t.Errorf("after respawn: alive=%v hp=%d shield=%d", s.Alive, s.HP, s.Shield)
	}
	if s.X != 700 || s.Y != 800 {
		t.Errorf("position = (%f,%f), want the respawn point", s.X, s.Y)
	}
	if s.VX != 0 || s.VY != 0 {
		t.Error("respawn should zero velocity")
	}
}

func TestNewSessionClampsPersistedVitals(t *testing.T) {
	profile := testProfile(1)
	profile.HP = BasePlayerHP * 3 // corrupt or legacy row
	profile.Shield = BasePlayerShield * 2

	s := NewPlayerSession(profile, "cid", &fakeEndpoint{}, time.Now())
	if s.HP != s.MaxHP {
		t.Errorf("hp = %d, want clamped to %d", s.HP, s.MaxHP)
	}
	if s.Shield != s.MaxShield {
		t.Errorf("shield = %d, want clamped to %d", s.Shield, s.MaxShield)
	}
}

func TestSendSkipsClosedEndpoint(t *testing.T) {
	ep := &fakeEndpoint{}
	s := NewPlayerSession(testProfile(1), "cid", ep, time.Now())
	ep.closed = true

	s.Send(Envelope{T: MsgError})
	s.SendRaw([]byte(`{}`))

	if len(ep.sent) != 0 || len(ep.raw) != 0 {
		t.Error("sends to a closed endpoint must be dropped")
	}
}
