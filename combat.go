package main

import (
	"time"

	"github.com/google/uuid"
)

const (
	CombatAntiSpamWindow = 500 * time.Millisecond
	CombatGracePeriod    = 1200 * time.Millisecond

	// rectangular engagement envelope around the target
	CombatEnvelopeHalfW = 700.0
	CombatEnvelopeHalfH = 500.0

	BasicAttackCooldown   = 1 * time.Second
	SpecialAttackCooldown = 6 * time.Second
	SpecialSafetyBuffer   = 0.5 // seconds added to projectile travel estimate
	SpecialDamageMul      = 3
)

// CombatError is a soft rejection: the connection stays open and the
// client receives a typed combat_error message.
type CombatError struct {
	Code string
	Msg  string
}

func (e *CombatError) Error() string { return e.Code + ": " + e.Msg }

// CombatSession is one player's active engagement. At most one exists per
// player; starting another is rejected, never replaced.
type CombatSession struct {
	PlayerID        int64
	TargetID        string
	Token           string
	StartedAt       time.Time
	LastAttack      time.Time
	LastSpecial     time.Time
	Cooldown        time.Duration
	OutOfRangeSince time.Time // zero while inside the envelope
}

// DamageCalc produces the damage number for an attack. The default is
// CalculateDamage; tests substitute fixed functions.
type DamageCalc func(base int, s *PlayerSession) int

// CombatManager orchestrates attack cadence, session ownership and
// safe-zone rules for all players in one world.
type CombatManager struct {
	world     *World
	sessions  map[int64]*CombatSession
	lastStart map[int64]time.Time
	calc      DamageCalc

	// notified when an engagement ends, for repair-eligibility cooldowns
	onEnd func(playerID int64, at time.Time)
}

// NewCombatManager wires the manager to its world
func NewCombatManager(w *World) *CombatManager {
	return &CombatManager{
		world:     w,
		sessions:  make(map[int64]*CombatSession),
		lastStart: make(map[int64]time.Time),
		calc:      CalculateDamage,
	}
}

// Session returns the player's active combat session, or nil
func (cm *CombatManager) Session(playerID int64) *CombatSession {
	return cm.sessions[playerID]
}

// Count returns the number of active engagements
func (cm *CombatManager) Count() int { return len(cm.sessions) }

// StartCombat opens an engagement against an NPC. On success the NPC's
// aggression locks onto the player immediately (retaliation must not
// wait for the next AI tick) and one resolution pass runs right away.
func (cm *CombatManager) StartCombat(s *PlayerSession, targetID string, now time.Time) (*CombatSession, *CombatError) {
	if targetID == "" {
		return nil, &CombatError{Code: ErrCodeMissingTarget, Msg: "no target id"}
	}
	npc := cm.world.npcs[targetID]
	if npc == nil {
		return nil, &CombatError{Code: ErrCodeTargetGone, Msg: "target no longer exists"}
	}
	if last, ok := cm.lastStart[s.PlayerID]; ok && now.Sub(last) < CombatAntiSpamWindow {
		return nil, &CombatError{Code: ErrCodeCombatSpam, Msg: "combat start throttled"}
	}
	if existing := cm.sessions[s.PlayerID]; existing != nil {
		// explicit conflict; the original session is untouched
		return nil, &CombatError{Code: ErrCodeCombatActive, Msg: "combat session already active"}
	}
	if z := zoneAt(cm.world.cfg.SafeZones, s.X, s.Y); z != nil {
		return nil, &CombatError{Code: ErrCodeSafeZone, Msg: "combat suppressed in " + z.Name}
	}
	cm.lastStart[s.PlayerID] = now

	cs := &CombatSession{
		PlayerID:  s.PlayerID,
		TargetID:  targetID,
		Token:     uuid.NewString(),
		StartedAt: now,
		Cooldown:  BasicAttackCooldown,
	}
	cm.sessions[s.PlayerID] = cs

	// instantaneous aggression lock plus facing, same tick as the start
	npc.LastAttackerID = s.PlayerID
	npc.LastDamage = now
	npc.Provoked = true
	npc.Behavior = BehaviorAggressive
	npc.Rotation = angleBetween(npc.X, npc.Y, s.X, s.Y)

	cm.processSession(s, cs, now)
	return cs, nil
}

// StopCombat tears down the player's engagement. Reason lands in the
// stop_combat message sent to the player.
func (cm *CombatManager) StopCombat(playerID int64, reason string, now time.Time) {
	cs := cm.sessions[playerID]
	if cs == nil {
		return
	}
	delete(cm.sessions, playerID)
	if cm.onEnd != nil {
		cm.onEnd(playerID, now)
	}
	if s := cm.world.players[playerID]; s != nil {
		s.Send(Envelope{T: MsgStopCombatOut, Data: StopCombatMsg{
			TargetID: cs.TargetID,
			Reason:   reason,
		}})
	}
}

// ProcessCombat runs one resolution pass over every active session
func (cm *CombatManager) ProcessCombat(now time.Time) {
	for pid, cs := range cm.sessions {
		s := cm.world.players[pid]
		if s == nil {
			delete(cm.sessions, pid)
			continue
		}
		cm.processSession(s, cs, now)
	}
}

func (cm *CombatManager) processSession(s *PlayerSession, cs *CombatSession, now time.Time) {
	npc := cm.world.npcs[cs.TargetID]
	if npc == nil {
		cm.StopCombat(s.PlayerID, "target_destroyed", now)
		return
	}
	if !s.Alive {
		cm.StopCombat(s.PlayerID, "stopped", now)
		return
	}

	px, py := s.EffectivePosition(now)
	inRange := InsideRect(npc.X, npc.Y, CombatEnvelopeHalfW, CombatEnvelopeHalfH, px, py)
	if !inRange {
		if cs.OutOfRangeSince.IsZero() {
			cs.OutOfRangeSince = now
		} else if now.Sub(cs.OutOfRangeSince) > CombatGracePeriod {
			cm.StopCombat(s.PlayerID, "out_of_range", now)
		}
		return
	}
	cs.OutOfRangeSince = time.Time{}

	// safe zones suppress outgoing fire but keep the session alive
	if zoneAt(cm.world.cfg.SafeZones, px, py) != nil {
		return
	}

	if now.Sub(cs.LastAttack) >= cs.Cooldown {
		cm.fireBasic(s, cs, npc, now)
	}
	if now.Sub(cs.LastSpecial) >= SpecialAttackCooldown {
		cm.fireSpecial(s, cs, npc, now)
	}
}

// fireBasic launches a cooldown-gated standard shot
func (cm *CombatManager) fireBasic(s *PlayerSession, cs *CombatSession, npc *NPC, now time.Time) {
	if s.Inventory.Ammo <= 0 {
		return
	}
	s.Inventory.Ammo--
	cs.LastAttack = now
	dmg := cm.calc(BasePlayerDamage, s)
	cm.world.spawnPlayerProjectile(s, npc, ProjBasic, dmg, now)
}

// fireSpecial launches the limited-cadence high-value shot, but only when
// the predictive check says the target will still be alive when the slower
// projectile arrives. Estimated time-to-death from current DPS versus
// travel time plus a safety buffer.
func (cm *CombatManager) fireSpecial(s *PlayerSession, cs *CombatSession, npc *NPC, now time.Time) {
	if s.Inventory.Rockets <= 0 {
		return
	}
	basic := float64(cm.calc(BasePlayerDamage, s))
	dps := basic / cs.Cooldown.Seconds()
	if dps <= 0 {
		return
	}
	timeToDeath := float64(npc.HP+npc.Shield) / dps
	travel := Distance(s.X, s.Y, npc.X, npc.Y)/ProjSpeedHeavy + SpecialSafetyBuffer
	if timeToDeath <= travel {
		return // target dies before arrival; don't waste the shot
	}
	s.Inventory.Rockets--
	cs.LastSpecial = now
	dmg := cm.calc(BasePlayerDamage*SpecialDamageMul, s)
	cm.world.spawnPlayerProjectile(s, npc, ProjHeavy, dmg, now)
}

// DisconnectPlayer tears down combat state for a leaving session without
// sending anything to it
func (cm *CombatManager) DisconnectPlayer(playerID int64, now time.Time) {
	if cm.sessions[playerID] == nil {
		return
	}
	delete(cm.sessions, playerID)
	delete(cm.lastStart, playerID)
	if cm.onEnd != nil {
		cm.onEnd(playerID, now)
	}
}

// TargetRemoved ends every engagement locked on a destroyed NPC
func (cm *CombatManager) TargetRemoved(npcID string, now time.Time) {
	for pid, cs := range cm.sessions {
		if cs.TargetID == npcID {
			cm.StopCombat(pid, "target_destroyed", now)
		}
	}
}
