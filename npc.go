package main

import (
	"math"
	"time"
)

// NPCBehavior tags the per-tick state machine
type NPCBehavior int

const (
	BehaviorCruise NPCBehavior = iota
	BehaviorAggressive
	BehaviorFlee
)

const (
	NPCPursuitRangeMul = 4.0  // pursuit range = multiple of attack range
	NPCOptimalBand     = 0.25 // band half-width as fraction of attack range
	NPCOrbitRerollProb = 0.02 // per-tick chance to flip orbit direction
	NPCCruiseSpeedMul  = 0.4  // cruise drifts at a fraction of full speed
	NPCCruiseTurnProb  = 0.01 // per-tick chance to re-randomize heading
	NPCFleeHPFrac      = 0.5  // flee below half health
)

// NPC is an AI-controlled hostile ship
type NPC struct {
	ID   string
	Kind string
	arch NPCArchetype

	X, Y     float64
	Rotation float64
	VX, VY   float64

	HP     int
	Shield int

	Behavior       NPCBehavior
	LastAttackerID int64 // engagement lock; 0 = none
	LastDamage     time.Time
	LastAttack     time.Time
	Provoked       bool // true once the locked player actually engaged it

	OrbitDir float64 // +1 or -1, tangential strafe direction
}

// NewNPC spawns an NPC of the given archetype at a random world position
func NewNPC(kind string, cfg MapConfig) *NPC {
	arch, ok := NPCTiers[kind]
	if !ok {
		arch = NPCTiers["drifter"]
	}
	n := &NPC{
		ID:       GenerateID(4),
		Kind:     arch.Kind,
		arch:     arch,
		X:        randFloat() * cfg.WorldWidth,
		Y:        randFloat() * cfg.WorldHeight,
		Rotation: randFloat() * 2 * math.Pi,
		HP:       arch.MaxHP,
		Shield:   arch.MaxShield,
		OrbitDir: 1,
	}
	if randFloat() < 0.5 {
		n.OrbitDir = -1
	}
	return n
}

// MaxHP returns the archetype health ceiling
func (n *NPC) MaxHP() int { return n.arch.MaxHP }

// MaxShield returns the archetype shield ceiling
func (n *NPC) MaxShield() int { return n.arch.MaxShield }

// Archetype returns the NPC's stat tier
func (n *NPC) Archetype() NPCArchetype { return n.arch }

// TakeDamage applies damage shield-first and records the attacker as the
// engagement lock. Health and shield never go negative. Returns true when
// the hit was lethal; removal and the single death broadcast happen in the
// same world step that applied the damage.
func (n *NPC) TakeDamage(dmg int, attackerID int64, now time.Time) bool {
	if n.HP <= 0 || dmg <= 0 {
		return false
	}
	if attackerID != 0 {
		n.LastAttackerID = attackerID
		n.LastDamage = now
		n.Provoked = true
	}
	if n.Shield > 0 {
		if dmg <= n.Shield {
			n.Shield -= dmg
			return false
		}
		dmg -= n.Shield
		n.Shield = 0
	}
	n.HP -= dmg
	if n.HP <= 0 {
		n.HP = 0
		return true
	}
	return false
}

// Update runs one behavior+movement tick. Returns true when the NPC wants
// to fire at its locked target this tick.
func (n *NPC) Update(dt float64, w *World, now time.Time) bool {
	if n.HP <= 0 {
		return false
	}

	// Non-finite state is a fault, not something to integrate
	if !Finite(n.X, n.Y, n.VX, n.VY, n.Rotation) {
		n.resetToSafe(w.cfg)
		return false
	}

	nearest := w.nearestLivePlayer(n.X, n.Y)
	n.selectBehavior(w, nearest, now)

	switch n.Behavior {
	case BehaviorAggressive:
		n.moveAggressive(dt, w, now)
	case BehaviorFlee:
		n.moveFlee(dt, nearest)
	default:
		n.moveCruise(dt)
	}

	n.integrate(dt, w.cfg)

	return n.wantsFire(w, now)
}

// selectBehavior applies the priority order: flee, aggressive, cruise
func (n *NPC) selectBehavior(w *World, nearest *PlayerSession, now time.Time) {
	if float64(n.HP) <= float64(n.arch.MaxHP)*NPCFleeHPFrac {
		n.Behavior = BehaviorFlee
		return
	}

	pursuitRange := n.arch.AttackRange * NPCPursuitRangeMul
	if n.LastAttackerID != 0 {
		if t := w.players[n.LastAttackerID]; t != nil && t.Alive &&
			Distance(n.X, n.Y, t.X, t.Y) <= pursuitRange {
			n.Behavior = BehaviorAggressive
			return
		}
		n.LastAttackerID = 0
		n.Provoked = false
	}

	// Proactive aggression: detection range locks onto the nearest player
	// without requiring prior damage
	if n.arch.DetectRange > 0 && nearest != nil &&
		Distance(n.X, n.Y, nearest.X, nearest.Y) <= n.arch.DetectRange {
		n.LastAttackerID = nearest.PlayerID
		n.LastDamage = now
		n.Behavior = BehaviorAggressive
		return
	}

	n.Behavior = BehaviorCruise
}

// moveAggressive seeks the optimal-distance band around attack range and
// blends in a tangential orbit component so the NPC strafes instead of
// sitting still
func (n *NPC) moveAggressive(dt float64, w *World, now time.Time) {
	t := w.players[n.LastAttackerID]
	if t == nil {
		return
	}

	dist := Distance(n.X, n.Y, t.X, t.Y)
	angleTo := math.Atan2(t.Y-n.Y, t.X-n.X)
	n.Rotation = angleTo

	optimal := n.arch.AttackRange * (1 - NPCOptimalBand)
	var radial float64
	switch {
	case dist > n.arch.AttackRange:
		radial = 1 // close in
	case dist < optimal:
		radial = -1 // back away
	default:
		radial = 0
	}

	if randFloat() < NPCOrbitRerollProb {
		n.OrbitDir = -n.OrbitDir
	}
	tangential := n.OrbitDir * (1 - math.Abs(radial)*0.5)

	vx := math.Cos(angleTo)*radial + math.Cos(angleTo+math.Pi/2)*tangential
	vy := math.Sin(angleTo)*radial + math.Sin(angleTo+math.Pi/2)*tangential
	norm := math.Hypot(vx, vy)
	if norm > 0 {
		n.VX = vx / norm * n.arch.Speed
		n.VY = vy / norm * n.arch.Speed
	}
}

// moveFlee runs directly away from the nearest threat, facing it only
// while still inside its own attack range so it can return fire while
// retreating
func (n *NPC) moveFlee(dt float64, threat *PlayerSession) {
	if threat == nil {
		n.moveCruise(dt)
		return
	}
	away := math.Atan2(n.Y-threat.Y, n.X-threat.X)
	n.VX = math.Cos(away) * n.arch.Speed
	n.VY = math.Sin(away) * n.arch.Speed
	if Distance(n.X, n.Y, threat.X, threat.Y) <= n.arch.AttackRange {
		n.Rotation = math.Atan2(threat.Y-n.Y, threat.X-n.X)
	} else {
		n.Rotation = away
	}
}

// moveCruise drifts at low speed, picking a random heading when nearly
// stopped and re-randomizing rotation with a small per-tick probability
func (n *NPC) moveCruise(dt float64) {
	speed := math.Hypot(n.VX, n.VY)
	if speed < 1 || randFloat() < NPCCruiseTurnProb {
		n.Rotation = randFloat() * 2 * math.Pi
		cruise := n.arch.Speed * NPCCruiseSpeedMul
		n.VX = math.Cos(n.Rotation) * cruise
		n.VY = math.Sin(n.Rotation) * cruise
	}
}

// integrate advances position and clamps to world bounds with
// velocity-component reflection on the overflowing axis
func (n *NPC) integrate(dt float64, cfg MapConfig) {
	n.X += n.VX * dt
	n.Y += n.VY * dt

	if n.X < 0 {
		n.X = 0
		n.VX = -n.VX
	} else if n.X > cfg.WorldWidth {
		n.X = cfg.WorldWidth
		n.VX = -n.VX
	}
	if n.Y < 0 {
		n.Y = 0
		n.VY = -n.VY
	} else if n.Y > cfg.WorldHeight {
		n.Y = cfg.WorldHeight
		n.VY = -n.VY
	}

	if !Finite(n.X, n.Y, n.VX, n.VY, n.Rotation) {
		n.resetToSafe(cfg)
	}
}

// wantsFire checks range, cooldown and safe-zone rules for the locked
// target. Inside a safe zone the NPC may only retaliate against the
// specific player who attacked it, which the engagement lock already is
// unless the lock came from proactive detection with no damage dealt.
func (n *NPC) wantsFire(w *World, now time.Time) bool {
	if n.Behavior != BehaviorAggressive && n.Behavior != BehaviorFlee {
		return false
	}
	if n.LastAttackerID == 0 {
		return false
	}
	t := w.players[n.LastAttackerID]
	if t == nil || !t.Alive {
		return false
	}
	if Distance(n.X, n.Y, t.X, t.Y) > n.arch.AttackRange {
		return false
	}
	if now.Sub(n.LastAttack).Seconds() < n.arch.AttackCooldown {
		return false
	}
	if z := zoneAt(w.cfg.SafeZones, t.X, t.Y); z != nil {
		// Retaliation exception: only the player who engaged this NPC
		// can be fired on inside a safe zone
		if !n.Provoked {
			return false
		}
	}
	n.LastAttack = now
	return true
}

// resetToSafe recovers from non-finite position or velocity
func (n *NPC) resetToSafe(cfg MapConfig) {
	n.X = cfg.WorldWidth / 2
	n.Y = cfg.WorldHeight / 2
	n.VX = 0
	n.VY = 0
	n.Rotation = 0
}
