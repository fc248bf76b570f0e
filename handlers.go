package main

import (
	"encoding/json"
	"log"
	"strings"
)

const (
	maxNicknameLen = 16
	maxChatLen     = 200
	fireRange      = 900.0 // manual fire plausibility bound
)

// handleJoin bootstraps a session. The external profile load validates a
// non-zero player id and non-null persisted vitals; its failures are
// classified and surfaced with distinct error codes, connection open.
func handleJoin(w *World, p *Peer, env InEnvelope) {
	var msg JoinMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeInternal, Msg: "malformed join"}})
		return
	}

	// one bootstrap per connection: rebinding the peer would strand its
	// current session in the world with no disconnect path
	if p.session != nil && w.players[p.session.PlayerID] == p.session {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeAccessDenied, Msg: "session already active"}})
		return
	}

	playerID := msg.PlayerID
	if msg.Token != "" && w.auth != nil {
		id, err := w.auth.ValidateToken(msg.Token)
		if err != nil {
			p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeAccessDenied, Msg: "invalid token"}})
			return
		}
		playerID = id
	}

	profile, err := w.profiles.Load(playerID)
	if err != nil {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: classifyProfileErr(err)}})
		return
	}

	if nick := strings.TrimSpace(msg.Nickname); nick != "" {
		if len(nick) > maxNicknameLen {
			nick = nick[:maxNicknameLen]
		}
		profile.Nickname = nick
	}

	now := w.now
	s := NewPlayerSession(profile, p.cid, p.ep, now)
	s.Binary = msg.Binary
	s.X, s.Y = w.cfg.SpawnPosition()
	s.LastGoodX = s.X
	s.LastGoodY = s.Y

	p.session = s
	w.AddSession(s)

	p.ep.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		PlayerID:  s.PlayerID,
		CID:       p.cid,
		Nickname:  s.Nickname,
		X:         round1(s.X),
		Y:         round1(s.Y),
		HP:        s.HP,
		MaxHP:     s.MaxHP,
		Shield:    s.Shield,
		MaxShield: s.MaxShield,
		Upgrades:  s.Upgrades,
		Inventory: s.Inventory,
		MapName:   w.cfg.Name,
		Bounds:    [2]float64{w.cfg.WorldWidth, w.cfg.WorldHeight},
	}})
}

// handlePositionUpdate runs the movement plausibility chain: world bounds
// (violation closes the connection), the per-second cap and the
// anti-teleport bound (both silently drop), then queues the update for
// the coalesced broadcast pass.
func handlePositionUpdate(w *World, p *Peer, env InEnvelope) {
	var msg PositionMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	s := p.session
	now := w.now

	if !Finite(msg.X, msg.Y, msg.VX, msg.VY, msg.Rotation) || !w.cfg.InBounds(msg.X, msg.Y) {
		p.ep.CloseWithPolicy(CloseInvalidPosition)
		return
	}
	if !allowMove(s, now) {
		return
	}
	elapsed := now.Sub(s.LastMoveAt)
	if Distance(s.LastGoodX, s.LastGoodY, msg.X, msg.Y) > s.MaxMoveDistance(elapsed) {
		return // teleport-implausible, drop without touching stored position
	}

	w.QueueMove(s, msg, now)
	p.ep.SendJSON(Envelope{T: MsgPositionAck, Data: PositionAckMsg{
		X:    round1(s.X),
		Y:    round1(s.Y),
		Tick: w.tick,
	}})
}

func handleHeartbeat(w *World, p *Peer, env InEnvelope) {
	p.session.LastInput = w.now
	p.ep.SendJSON(Envelope{T: MsgHeartbeatAck, Data: HeartbeatAckMsg{
		ServerTime: w.now.UnixMilli(),
		Tick:       w.tick,
	}})
}

// handleSkillUpgrade purchases one upgrade level. All rejections are soft:
// typed error, connection open.
func handleSkillUpgrade(w *World, p *Peer, env InEnvelope) {
	var msg SkillUpgradeMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	s := p.session

	spec, ok := UpgradeCatalogMap[msg.Skill]
	if !ok {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeInvalidUpgrade, Msg: msg.Skill}})
		return
	}
	level := upgradeLevel(s, spec.Kind)
	if level >= MaxUpgradeLevel {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeMaxLevel}})
		return
	}
	cost := UpgradeCost(spec, level)
	if s.Inventory.Credits < cost {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeInsufficient}})
		return
	}

	s.Inventory.Credits -= cost
	applyUpgrade(s, spec.Kind)
	p.ep.SendJSON(Envelope{T: MsgPlayerDataOut, Data: sessionData(s)})
}

func upgradeLevel(s *PlayerSession, kind string) int {
	switch kind {
	case UpgradeHP:
		return s.Upgrades.HP
	case UpgradeShield:
		return s.Upgrades.Shield
	case UpgradeSpeed:
		return s.Upgrades.Speed
	default:
		return s.Upgrades.Damage
	}
}

func applyUpgrade(s *PlayerSession, kind string) {
	switch kind {
	case UpgradeHP:
		s.Upgrades.HP++
		s.MaxHP = BasePlayerHP + s.Upgrades.HP*int(UpgradeCatalogMap[UpgradeHP].PerLevel)
	case UpgradeShield:
		s.Upgrades.Shield++
		s.MaxShield = BasePlayerShield + s.Upgrades.Shield*int(UpgradeCatalogMap[UpgradeShield].PerLevel)
	case UpgradeSpeed:
		s.Upgrades.Speed++
	default:
		s.Upgrades.Damage++
	}
}

// handleProjectileFired registers a validated manual shot at an NPC
func handleProjectileFired(w *World, p *Peer, env InEnvelope) {
	var msg FireMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	s := p.session

	target := w.npcs[msg.TargetID]
	if target == nil {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeTargetGone}})
		return
	}
	if Distance(s.X, s.Y, target.X, target.Y) > fireRange {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeMissingTarget, Msg: "target out of range"}})
		return
	}
	if zoneAt(w.cfg.SafeZones, s.X, s.Y) != nil {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeSafeZone}})
		return
	}

	kind := ProjBasic
	base := BasePlayerDamage
	if msg.Heavy {
		if s.Inventory.Rockets <= 0 {
			p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeNoAmmo}})
			return
		}
		s.Inventory.Rockets--
		kind = ProjHeavy
		base = BasePlayerDamage * SpecialDamageMul
	} else {
		if s.Inventory.Ammo <= 0 {
			p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeNoAmmo}})
			return
		}
		s.Inventory.Ammo--
	}

	w.spawnPlayerProjectile(s, target, kind, CalculateDamage(base, s), w.now)
}

// handleStartCombat opens an engagement; conflicts and other soft
// rejections answer with combat_error
func handleStartCombat(w *World, p *Peer, env InEnvelope) {
	var msg CombatMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	cs, cerr := w.combat.StartCombat(p.session, msg.TargetID, w.now)
	if cerr != nil {
		p.ep.SendJSON(Envelope{T: MsgCombatError, Data: ErrorMsg{Code: cerr.Code, Msg: cerr.Msg}})
		return
	}
	p.ep.SendJSON(Envelope{T: MsgCombatUpdate, Data: CombatUpdateMsg{
		TargetID: cs.TargetID,
		Token:    cs.Token,
	}})
}

func handleStopCombat(w *World, p *Peer, env InEnvelope) {
	w.combat.StopCombat(p.session.PlayerID, "stopped", w.now)
}

// handleExplosionCreated relays a client visual to a wider radius for
// synchronized effects
func handleExplosionCreated(w *World, p *Peer, env InEnvelope) {
	var msg ExplosionMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	if !w.cfg.InBounds(msg.X, msg.Y) {
		return
	}
	w.broadcastNear(msg.X, msg.Y, w.cfg.NPCEventRadius*1.5, Envelope{T: MsgExplosionOut, Data: ExplosionOutMsg{
		X: round1(msg.X), Y: round1(msg.Y), Kind: msg.Kind,
	}}, p.session.PlayerID)
}

// handleLeaderboard queries the profile collaborator; a failure triggers
// one same-shape fallback query before giving up
func handleLeaderboard(w *World, p *Peer, env InEnvelope) {
	var msg LeaderboardReqMsg
	if len(env.D) > 0 {
		if err := json.Unmarshal(env.D, &msg); err != nil {
			return
		}
	}
	limit := msg.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	entries, err := w.profiles.Leaderboard(msg.OrderBy, limit)
	if err != nil {
		log.Printf("leaderboard query failed (%v), retrying with defaults", err)
		entries, err = w.profiles.Leaderboard("", limit)
	}
	if err != nil {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: classifyProfileErr(err)}})
		return
	}
	p.ep.SendJSON(Envelope{T: MsgLeaderboardData, Data: entries})
}

func handlePlayerData(w *World, p *Peer, env InEnvelope) {
	p.ep.SendJSON(Envelope{T: MsgPlayerDataOut, Data: sessionData(p.session)})
}

func sessionData(s *PlayerSession) PlayerDataMsg {
	return PlayerDataMsg{
		PlayerID:  s.PlayerID,
		Nickname:  s.Nickname,
		HP:        s.HP,
		MaxHP:     s.MaxHP,
		Shield:    s.Shield,
		MaxShield: s.MaxShield,
		Upgrades:  s.Upgrades,
		Inventory: s.Inventory,
		Rank:      s.Rank,
	}
}

// handleChat relays a line to sessions within the interest radius
func handleChat(w *World, p *Peer, env InEnvelope) {
	var msg ChatMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if len(text) > maxChatLen {
		text = text[:maxChatLen]
	}
	s := p.session
	w.broadcastNear(s.X, s.Y, w.cfg.InterestRadius, Envelope{T: MsgChatOut, Data: ChatOutMsg{
		PlayerID: s.PlayerID,
		Nickname: s.Nickname,
		Text:     text,
	}}, 0)
}

func handleSave(w *World, p *Peer, env InEnvelope) {
	if err := w.profiles.Save(p.session); err != nil {
		log.Printf("profile save failed for %d: %v", p.session.PlayerID, err)
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeSaveFailed}})
		return
	}
	p.ep.SendJSON(Envelope{T: MsgSaveAck})
}

// handleRespawn restores a dead session at a safe-zone spawn point
func handleRespawn(w *World, p *Peer, env InEnvelope) {
	s := p.session
	if s.Alive {
		p.ep.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Code: ErrCodeNotDead}})
		return
	}
	x, y := w.cfg.SpawnPosition()
	s.Respawn(x, y)
	s.LastGoodX = x
	s.LastGoodY = y
	s.LastMoveAt = w.now
	p.ep.SendJSON(Envelope{T: MsgRespawnAck, Data: RespawnAckMsg{
		X:      round1(x),
		Y:      round1(y),
		HP:     s.HP,
		Shield: s.Shield,
	}})
}

// handleMonitor is the privileged counters report. The gate skips it, so
// it does its own checks: a forged monitor from a non-admin is a probe
// and closes the connection.
func handleMonitor(w *World, p *Peer, env InEnvelope) {
	s := p.session
	if s == nil || !s.Admin {
		p.ep.CloseWithPolicy(CloseIdentityMismatch)
		return
	}
	p.ep.SendJSON(Envelope{T: MsgMonitorReport, Data: w.Monitor()})
}
