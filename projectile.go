package main

import (
	"math"
	"time"
)

// Projectile kinds
const (
	ProjBasic = "basic"
	ProjHeavy = "heavy"
	ProjArea  = "area"
)

const (
	ProjSpeedBasic = 500.0
	ProjSpeedHeavy = 350.0
	ProjSpeedNPC   = 450.0

	// homing prediction
	HomingHorizonCap  = 0.8 // seconds; hard cap on lead-time extrapolation
	HomingHorizonFrac = 0.5 // horizon also capped at this fraction of time-to-target
	HomingCloseRadius = 80.0
	HomingCloseBoost  = 1.5 // bounded speed multiplier inside the close radius

	// lifetime ceilings
	ProjLifetimeSlack  = 1.5 // lifetime = time-to-target * slack
	ProjLifetimeCap    = 8.0 // hard maximum, seconds
	ProjLifetimeNoHome = 2.0 // untargeted shots
	ProjTargetDistCeil = 2000.0

	// deterministic NPC attacks: hit outcome fixed at fire time
	NPCShotTravelDelay = 1.0 // seconds until the pre-decided hit lands
)

// Projectile is a live shot in the world. A non-empty target enables
// homing; DetHitAt marks the deterministic NPC-attack path where the hit
// is decided at fire time instead of by runtime collision.
type Projectile struct {
	ID   string
	Kind string

	OwnerPlayerID int64  // 0 when NPC-fired
	OwnerNPCID    string // "" when player-fired

	TargetPlayerID int64
	TargetNPCID    string

	X, Y   float64
	VX, VY float64
	Speed  float64
	Damage int

	CreatedAt time.Time
	UpdatedAt time.Time
	Lifetime  float64   // seconds, fixed at creation
	DetHitAt  time.Time // zero for the physical homing path
}

// NewPlayerProjectile aims a shot from a session at a live NPC target
func NewPlayerProjectile(s *PlayerSession, target *NPC, kind string, damage int, now time.Time) *Projectile {
	speed := ProjSpeedBasic
	if kind == ProjHeavy {
		speed = ProjSpeedHeavy
	}
	dist := Distance(s.X, s.Y, target.X, target.Y)
	life := dist / speed * ProjLifetimeSlack
	if life > ProjLifetimeCap {
		life = ProjLifetimeCap
	}
	angle := math.Atan2(target.Y-s.Y, target.X-s.X)
	return &Projectile{
		ID:            GenerateID(4),
		Kind:          kind,
		OwnerPlayerID: s.PlayerID,
		TargetNPCID:   target.ID,
		X:             s.X,
		Y:             s.Y,
		VX:            math.Cos(angle) * speed,
		VY:            math.Sin(angle) * speed,
		Speed:         speed,
		Damage:        damage,
		CreatedAt:     now,
		UpdatedAt:     now,
		Lifetime:      life,
	}
}

// NewNPCProjectile fires the deterministic NPC attack: the hit time is
// fixed now, and damage lands at that tick regardless of minor positional
// drift.
func NewNPCProjectile(n *NPC, target *PlayerSession, now time.Time) *Projectile {
	angle := math.Atan2(target.Y-n.Y, target.X-n.X)
	return &Projectile{
		ID:             GenerateID(4),
		Kind:           ProjBasic,
		OwnerNPCID:     n.ID,
		TargetPlayerID: target.PlayerID,
		X:              n.X,
		Y:              n.Y,
		VX:             math.Cos(angle) * ProjSpeedNPC,
		VY:             math.Sin(angle) * ProjSpeedNPC,
		Speed:          ProjSpeedNPC,
		Damage:         n.Archetype().Damage,
		CreatedAt:      now,
		UpdatedAt:      now,
		Lifetime:       NPCShotTravelDelay + 1.0,
		DetHitAt:       now.Add(time.Duration(NPCShotTravelDelay * float64(time.Second))),
	}
}

// HasTarget reports whether the projectile homes on a specific entity
func (p *Projectile) HasTarget() bool {
	return p.TargetNPCID != "" || p.TargetPlayerID != 0
}

// Steer adjusts velocity toward the target's extrapolated future position.
// The prediction horizon is bounded so lead never overshoots wildly, and
// speed is boosted inside the close radius to guarantee closure instead of
// orbiting the target.
func (p *Projectile) Steer(tx, ty, tvx, tvy float64) {
	dist := Distance(p.X, p.Y, tx, ty)
	horizon := dist / p.Speed * HomingHorizonFrac
	if horizon > HomingHorizonCap {
		horizon = HomingHorizonCap
	}
	px := tx + tvx*horizon
	py := ty + tvy*horizon

	angle := math.Atan2(py-p.Y, px-p.X)
	speed := p.Speed
	if dist <= HomingCloseRadius {
		speed *= HomingCloseBoost
	}
	p.VX = math.Cos(angle) * speed
	p.VY = math.Sin(angle) * speed
}

// Integrate advances position by velocity over dt
func (p *Projectile) Integrate(dt float64, now time.Time) {
	p.X += p.VX * dt
	p.Y += p.VY * dt
	p.UpdatedAt = now
}

// IntegrateToward advances position by velocity over dt, clamping the
// step to the remaining distance so a boosted close-radius step never
// carries the shot past its target in a single tick.
func (p *Projectile) IntegrateToward(tx, ty, dt float64, now time.Time) {
	step := math.Hypot(p.VX, p.VY) * dt
	if step >= Distance(p.X, p.Y, tx, ty) {
		p.X, p.Y = tx, ty
	} else {
		p.X += p.VX * dt
		p.Y += p.VY * dt
	}
	p.UpdatedAt = now
}

// Expired checks the type-dependent lifetime ceiling
func (p *Projectile) Expired(now time.Time) bool {
	life := p.Lifetime
	if life <= 0 {
		life = ProjLifetimeNoHome
	}
	return now.Sub(p.CreatedAt).Seconds() > life
}

// OwnerKey returns a string id for the projectile owner, usable in wire
// messages that carry either player or NPC identifiers
func (p *Projectile) OwnerKey() string {
	if p.OwnerNPCID != "" {
		return p.OwnerNPCID
	}
	return canonicalCID(p.OwnerPlayerID)
}
