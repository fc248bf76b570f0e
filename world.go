package main

import (
	"time"
)

const (
	TickRate       = 20 // simulation ticks per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = 4 // movement/NPC snapshot flush every 4th tick (5 Hz)

	commandBufSize = 256
)

// npcRespawn schedules a replacement spawn for a destroyed NPC
type npcRespawn struct {
	kind string
	at   time.Time
}

// World is the authoritative aggregate for one map: all simulation state
// mutation happens on the single goroutine running Run, fed by a
// serialized queue of inbound-message commands interleaved with tick
// events. Network I/O stays concurrent per connection; nothing else may
// touch the entity maps.
type World struct {
	cfg MapConfig

	players     map[int64]*PlayerSession
	npcs        map[string]*NPC
	projectiles map[string]*Projectile

	combat   *CombatManager
	router   *Router
	profiles ProfileService
	auth     *Auth
	events   *EventTracker

	commands chan func(*World)
	stop     chan struct{}

	tick uint64
	now  time.Time

	// movement updates are buffered and coalesced, latest-wins per
	// session, then flushed at the broadcast rate
	pendingMoves map[int64]PositionMsg

	respawns []npcRespawn
}

// NewWorld builds a world for the given map and populates its NPCs
func NewWorld(cfg MapConfig, profiles ProfileService, auth *Auth, events *EventTracker) *World {
	w := &World{
		cfg:          cfg,
		players:      make(map[int64]*PlayerSession),
		npcs:         make(map[string]*NPC),
		projectiles:  make(map[string]*Projectile),
		profiles:     profiles,
		auth:         auth,
		events:       events,
		commands:     make(chan func(*World), commandBufSize),
		stop:         make(chan struct{}),
		pendingMoves: make(map[int64]PositionMsg),
		now:          time.Now(),
	}
	w.combat = NewCombatManager(w)
	w.combat.onEnd = func(playerID int64, at time.Time) {
		if s := w.players[playerID]; s != nil {
			s.LastCombatEnd = at
		}
	}
	w.router = NewRouter(w)
	w.populate()
	return w
}

// populate seeds the configured NPC counts at world initialization
func (w *World) populate() {
	for kind, count := range w.cfg.SpawnCounts {
		for i := 0; i < count; i++ {
			n := NewNPC(kind, w.cfg)
			w.npcs[n.ID] = n
		}
	}
}

// Run drives the fixed 50 ms tick and drains the command queue. No two
// ticks and no two message handlers run concurrently.
func (w *World) Run() {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.step(time.Now())
		case cmd := <-w.commands:
			w.now = time.Now()
			cmd(w)
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the world loop
func (w *World) Stop() {
	close(w.stop)
}

// Post enqueues a command for the world goroutine. Blocks when the queue
// is full; that backpressure lands on the connection's read goroutine,
// never on the tick.
func (w *World) Post(cmd func(*World)) {
	select {
	case w.commands <- cmd:
	case <-w.stop:
	}
}

// step advances one tick in fixed order: NPC movement, combat resolution,
// projectile physics/collision, then the lower-frequency broadcast passes.
func (w *World) step(now time.Time) {
	w.now = now
	w.tick++
	dt := TickDuration.Seconds()

	w.tickNPCs(dt, now)
	w.combat.ProcessCombat(now)
	w.tickProjectiles(dt, now)
	w.tickRespawns(now)

	if w.tick%BroadcastEvery == 0 {
		w.flushMovement()
		w.broadcastNPCSnapshots()
		w.broadcastProjectileUpdates()
	}
}

// nearestLivePlayer scans for the closest alive session. Single
// nearest-neighbor scan; entity counts don't warrant a spatial index.
func (w *World) nearestLivePlayer(x, y float64) *PlayerSession {
	var best *PlayerSession
	bestD := -1.0
	for _, s := range w.players {
		if !s.Alive {
			continue
		}
		d := DistanceSq(x, y, s.X, s.Y)
		if bestD < 0 || d < bestD {
			bestD = d
			best = s
		}
	}
	return best
}

func (w *World) tickNPCs(dt float64, now time.Time) {
	for _, n := range w.npcs {
		if n.Update(dt, w, now) {
			if target := w.players[n.LastAttackerID]; target != nil && target.Alive {
				w.spawnNPCProjectile(n, target, now)
			}
		}
	}
}

// spawnPlayerProjectile creates and announces a player shot at an NPC
func (w *World) spawnPlayerProjectile(s *PlayerSession, target *NPC, kind string, damage int, now time.Time) *Projectile {
	p := NewPlayerProjectile(s, target, kind, damage, now)
	w.projectiles[p.ID] = p
	w.broadcastNear(s.X, s.Y, w.cfg.InterestRadius, Envelope{T: MsgProjectileOut, Data: ProjectileFiredMsg{
		ID:       p.ID,
		OwnerID:  p.OwnerKey(),
		TargetID: target.ID,
		X:        round1(p.X),
		Y:        round1(p.Y),
		Kind:     kind,
	}}, 0)
	return p
}

// spawnNPCProjectile fires the deterministic NPC attack
func (w *World) spawnNPCProjectile(n *NPC, target *PlayerSession, now time.Time) *Projectile {
	p := NewNPCProjectile(n, target, now)
	w.projectiles[p.ID] = p
	w.broadcastNear(n.X, n.Y, w.cfg.InterestRadius, Envelope{T: MsgProjectileOut, Data: ProjectileFiredMsg{
		ID:       p.ID,
		OwnerID:  n.ID,
		TargetID: canonicalCID(target.PlayerID),
		X:        round1(p.X),
		Y:        round1(p.Y),
		Kind:     p.Kind,
	}}, 0)
	return p
}

// tickProjectiles integrates, steers and collides every live projectile
func (w *World) tickProjectiles(dt float64, now time.Time) {
	for id, p := range w.projectiles {
		// deterministic NPC shots: outcome decided at fire time
		if !p.DetHitAt.IsZero() {
			target := w.players[p.TargetPlayerID]
			if target == nil {
				w.removeProjectile(id, "orphaned")
				continue
			}
			if !now.Before(p.DetHitAt) {
				w.hitPlayer(p, target, now)
				w.removeProjectile(id, "hit")
				continue
			}
			// fly toward the defender for visual continuity
			p.Steer(target.X, target.Y, target.VX, target.VY)
			p.IntegrateToward(target.X, target.Y, dt, now)
			continue
		}

		if p.HasTarget() {
			tx, ty, tvx, tvy, ok := w.resolveTarget(p)
			if !ok {
				// orphaned: the target no longer resolves
				w.removeProjectile(id, "orphaned")
				continue
			}
			p.Steer(tx, ty, tvx, tvy)
			p.IntegrateToward(tx, ty, dt, now)

			if Distance(p.X, p.Y, tx, ty) > ProjTargetDistCeil {
				w.removeProjectile(id, "expired")
				continue
			}
			if w.collideTargeted(p, now) {
				w.removeProjectile(id, "hit")
				continue
			}
		} else {
			p.Integrate(dt, now)
			if w.collideGeneric(p, now) {
				w.removeProjectile(id, "hit")
				continue
			}
		}

		if !w.cfg.InBounds(p.X, p.Y) {
			w.removeProjectile(id, "out_of_bounds")
			continue
		}
		if p.Expired(now) {
			w.removeProjectile(id, "expired")
		}
	}
}

// resolveTarget looks up a projectile's locked target position/velocity
func (w *World) resolveTarget(p *Projectile) (x, y, vx, vy float64, ok bool) {
	if p.TargetNPCID != "" {
		if n := w.npcs[p.TargetNPCID]; n != nil {
			return n.X, n.Y, n.VX, n.VY, true
		}
		return 0, 0, 0, 0, false
	}
	if s := w.players[p.TargetPlayerID]; s != nil && s.Alive {
		return s.X, s.Y, s.VX, s.VY, true
	}
	return 0, 0, 0, 0, false
}

// collideTargeted tests distance only against the specific locked target
func (w *World) collideTargeted(p *Projectile, now time.Time) bool {
	if p.TargetNPCID != "" {
		n := w.npcs[p.TargetNPCID]
		if n != nil && WithinRadius(n.X, n.Y, NPCHitRadius, p.X, p.Y) {
			w.hitNPC(p, n, now)
			return true
		}
		return false
	}
	s := w.players[p.TargetPlayerID]
	radius := PlayerHitRadius
	if p.OwnerNPCID != "" {
		radius = NPCShotHitRadius
	}
	if s != nil && s.Alive && WithinRadius(s.X, s.Y, radius, p.X, p.Y) {
		w.hitPlayer(p, s, now)
		return true
	}
	return false
}

// collideGeneric falls back to nearest-entity collision, NPCs first then
// players, excluding the shooter
func (w *World) collideGeneric(p *Projectile, now time.Time) bool {
	for _, n := range w.npcs {
		if n.ID == p.OwnerNPCID {
			continue
		}
		if WithinRadius(n.X, n.Y, GenericHitRadius, p.X, p.Y) {
			w.hitNPC(p, n, now)
			return true
		}
	}
	for _, s := range w.players {
		if !s.Alive || s.PlayerID == p.OwnerPlayerID {
			continue
		}
		if WithinRadius(s.X, s.Y, GenericHitRadius, p.X, p.Y) {
			w.hitPlayer(p, s, now)
			return true
		}
	}
	return false
}

// hitNPC applies projectile damage to an NPC and handles death in the
// same step: explosion first to a wider radius, then the destruction
// event, reward, removal and respawn scheduling.
func (w *World) hitNPC(p *Projectile, n *NPC, now time.Time) {
	died := n.TakeDamage(p.Damage, p.OwnerPlayerID, now)

	w.broadcastNear(n.X, n.Y, w.cfg.NPCEventRadius, Envelope{T: MsgEntityDamaged, Data: EntityDamagedMsg{
		EntityID: n.ID,
		ByID:     p.OwnerKey(),
		Damage:   p.Damage,
		HP:       n.HP,
		Shield:   n.Shield,
	}}, 0)

	if !died {
		return
	}

	w.broadcastNear(n.X, n.Y, w.cfg.NPCEventRadius*1.5, Envelope{T: MsgExplosionOut, Data: ExplosionOutMsg{
		X: round1(n.X), Y: round1(n.Y), Kind: n.Kind,
	}}, 0)
	w.broadcastNear(n.X, n.Y, w.cfg.NPCEventRadius, Envelope{T: MsgEntityDestroyed, Data: EntityDestroyedMsg{
		EntityID: n.ID,
		ByID:     p.OwnerKey(),
	}}, 0)

	if killer := w.players[p.OwnerPlayerID]; killer != nil {
		arch := n.Archetype()
		killer.Inventory.Credits += arch.RewardCredits
		killer.Inventory.Experience += arch.RewardXP
		killer.Inventory.Honor += arch.RewardHonor
		w.events.Track(EvtNPCKill, killer.PlayerID, n.Kind)
	}

	// removal happens in the same step that applied the killing damage
	delete(w.npcs, n.ID)
	w.combat.TargetRemoved(n.ID, now)
	w.respawns = append(w.respawns, npcRespawn{
		kind: n.Kind,
		at:   now.Add(time.Duration(w.cfg.RespawnDelay * float64(time.Second))),
	})
}

// hitPlayer applies projectile damage to a session. Player damage and
// destruction events bypass the interest filter: everyone must know when
// a player is hit.
func (w *World) hitPlayer(p *Projectile, s *PlayerSession, now time.Time) {
	died := s.TakeDamage(p.Damage)

	w.broadcastAll(Envelope{T: MsgEntityDamaged, Data: EntityDamagedMsg{
		EntityID: canonicalCID(s.PlayerID),
		ByID:     p.OwnerKey(),
		Damage:   p.Damage,
		HP:       s.HP,
		Shield:   s.Shield,
	}}, 0)

	if !died {
		return
	}

	w.broadcastAll(Envelope{T: MsgExplosionOut, Data: ExplosionOutMsg{
		X: round1(s.X), Y: round1(s.Y), Kind: "player",
	}}, 0)
	w.broadcastAll(Envelope{T: MsgEntityDestroyed, Data: EntityDestroyedMsg{
		EntityID: canonicalCID(s.PlayerID),
		ByID:     p.OwnerKey(),
	}}, 0)

	w.combat.StopCombat(s.PlayerID, "stopped", now)
	w.events.Track(EvtPlayerDeath, s.PlayerID, p.OwnerKey())
}

// removeProjectile deletes a projectile and announces the removal
func (w *World) removeProjectile(id, reason string) {
	p := w.projectiles[id]
	if p == nil {
		return
	}
	delete(w.projectiles, id)
	w.broadcastNear(p.X, p.Y, w.cfg.InterestRadius, Envelope{T: MsgProjectileDone, Data: ProjectileDoneMsg{
		ID:     id,
		Reason: reason,
	}}, 0)
}

// tickRespawns replaces destroyed NPCs once their delay elapses so maps
// keep their configured population
func (w *World) tickRespawns(now time.Time) {
	remaining := w.respawns[:0]
	for _, r := range w.respawns {
		if now.Before(r.at) {
			remaining = append(remaining, r)
			continue
		}
		n := NewNPC(r.kind, w.cfg)
		w.npcs[n.ID] = n
	}
	w.respawns = remaining
}

// QueueMove commits an accepted movement update and queues it for the
// coalesced broadcast pass (latest-wins per session)
func (w *World) QueueMove(s *PlayerSession, m PositionMsg, now time.Time) {
	s.ApplyMove(m, now)
	w.pendingMoves[s.PlayerID] = m
}

// AddSession inserts a joined session, evicting any stale session with
// the same stable player id first (reconnection) and broadcasting its
// departure before announcing the new arrival.
func (w *World) AddSession(s *PlayerSession) {
	if stale := w.players[s.PlayerID]; stale != nil {
		w.RemoveSession(stale)
	}
	w.players[s.PlayerID] = s
	w.broadcastAll(Envelope{T: MsgPlayerJoined, Data: PlayerEventMsg{
		PlayerID: s.PlayerID,
		Nickname: s.Nickname,
	}}, s.PlayerID)
	w.events.Track(EvtPlayerJoin, s.PlayerID, w.cfg.Name)
}

// RemoveSession tears a session down: combat state, queued movement and
// the entity-store entry all go in the same command, nothing is deferred
// past the next tick.
func (w *World) RemoveSession(s *PlayerSession) {
	if w.players[s.PlayerID] != s {
		return
	}
	w.combat.DisconnectPlayer(s.PlayerID, w.now)
	delete(w.pendingMoves, s.PlayerID)
	delete(w.players, s.PlayerID)
	w.broadcastAll(Envelope{T: MsgPlayerLeft, Data: PlayerEventMsg{
		PlayerID: s.PlayerID,
		Nickname: s.Nickname,
	}}, s.PlayerID)
	w.events.Track(EvtPlayerLeave, s.PlayerID, w.cfg.Name)
}

// SessionByCID finds a session by its issued connection id
func (w *World) SessionByCID(cid string) *PlayerSession {
	for _, s := range w.players {
		if s.CID == cid {
			return s
		}
	}
	return nil
}

// Monitor returns the privileged world counters
func (w *World) Monitor() MonitorReportMsg {
	return MonitorReportMsg{
		Tick:        w.tick,
		Players:     len(w.players),
		NPCs:        len(w.npcs),
		Projectiles: len(w.projectiles),
		Combats:     w.combat.Count(),
	}
}
