package main

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types
const (
	MsgJoin             = "join"
	MsgPositionUpdate   = "position_update"
	MsgHeartbeat        = "heartbeat"
	MsgSkillUpgrade     = "skill_upgrade_request"
	MsgProjectileFired  = "projectile_fired"
	MsgStartCombat      = "start_combat"
	MsgStopCombat       = "stop_combat"
	MsgExplosionCreated = "explosion_created"
	MsgLeaderboard      = "request_leaderboard"
	MsgPlayerData       = "request_player_data"
	MsgChat             = "chat_message"
	MsgSave             = "save_request"
	MsgRespawn          = "player_respawn_request"
	MsgMonitor          = "monitor"
)

// Server -> Client message types
const (
	MsgWelcome            = "welcome"
	MsgPlayerJoined       = "player_joined"
	MsgPlayerLeft         = "player_left"
	MsgRemotePlayerUpdate = "remote_player_update"
	MsgNPCBulkUpdate      = "npc_bulk_update"
	MsgProjectileOut      = "projectile_fired"
	MsgProjectileDone     = "projectile_destroyed"
	MsgProjectileUpdates  = "projectile_updates"
	MsgEntityDamaged      = "entity_damaged"
	MsgEntityDestroyed    = "entity_destroyed"
	MsgExplosionOut       = "explosion_created"
	MsgStopCombatOut      = "stop_combat"
	MsgCombatUpdate       = "combat_update"
	MsgError              = "error"
	MsgCombatError        = "combat_error"
	MsgPositionAck        = "position_ack"
	MsgHeartbeatAck       = "heartbeat_ack"
	MsgChatOut            = "chat_message"
	MsgLeaderboardData    = "leaderboard"
	MsgPlayerDataOut      = "player_data"
	MsgSaveAck            = "save_ack"
	MsgRespawnAck         = "respawn_ack"
	MsgMonitorReport      = "monitor_report"
)

// Machine-readable error codes carried by MsgError / MsgCombatError
const (
	ErrCodeInternal         = "internal_error"
	ErrCodeNotFound         = "profile_not_found"
	ErrCodeAccessDenied     = "profile_access_denied"
	ErrCodeConnectionFailed = "profile_connection_failure"
	ErrCodeSchemaMismatch   = "profile_schema_mismatch"
	ErrCodeSaveFailed       = "save_failed"
	ErrCodeInvalidUpgrade   = "invalid_upgrade_type"
	ErrCodeMaxLevel         = "max_level_reached"
	ErrCodeInsufficient     = "insufficient_resources"
	ErrCodeNoAmmo           = "no_ammunition"
	ErrCodeCombatActive     = "combat_session_active"
	ErrCodeCombatSpam       = "combat_start_too_fast"
	ErrCodeMissingTarget    = "missing_target"
	ErrCodeTargetGone       = "target_not_found"
	ErrCodeSafeZone         = "safe_zone"
	ErrCodeNotDead          = "not_dead"
	ErrCodeLeaderboard      = "leaderboard_unavailable"
)

// Close reasons paired with websocket policy-violation code 1008
const (
	CloseIdentityMismatch = "identity_mismatch"
	CloseRateLimit        = "rate_limit_exceeded"
	CloseInvalidPosition  = "invalid_world_position"
	CloseDeadAction       = "dead_player_action"
	CloseNoSession        = "no_session"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids
// double-unmarshal. CID is the claimed connection id, PID the claimed
// player id; both are checked by the security gate before dispatch.
type InEnvelope struct {
	T   string          `json:"type"`
	CID string          `json:"cid,omitempty"`
	PID int64           `json:"pid,omitempty"`
	D   json.RawMessage `json:"data,omitempty"`
}

// JoinMsg bootstraps a session. Either PlayerID (dev/guest path) or Token
// (signed reconnect token) identifies the account. Binary opts the client
// into msgpack NPC snapshots.
type JoinMsg struct {
	PlayerID int64  `json:"playerId,omitempty"`
	Token    string `json:"token,omitempty"`
	Nickname string `json:"nickname"`
	Binary   bool   `json:"binary,omitempty"`
}

// PositionMsg is a client movement intent
type PositionMsg struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
}

// SkillUpgradeMsg requests one upgrade level purchase
type SkillUpgradeMsg struct {
	Skill string `json:"skill"` // hp | shield | speed | damage
}

// FireMsg is a client-initiated shot at an NPC
type FireMsg struct {
	TargetID string `json:"targetId"`
	Heavy    bool   `json:"heavy,omitempty"`
}

// CombatMsg starts or stops an engagement
type CombatMsg struct {
	TargetID string `json:"targetId"`
}

// ExplosionMsg echoes a client-side visual for synchronized effects
type ExplosionMsg struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Kind string  `json:"kind,omitempty"`
}

// ChatMsg is a chat line relayed to nearby sessions
type ChatMsg struct {
	Text string `json:"text"`
}

// LeaderboardReqMsg selects the ranking column
type LeaderboardReqMsg struct {
	OrderBy string `json:"orderBy,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// WelcomeMsg is sent to a player after a successful join
type WelcomeMsg struct {
	PlayerID  int64      `json:"playerId"`
	CID       string     `json:"cid"`
	Nickname  string     `json:"nickname"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	HP        int        `json:"hp"`
	MaxHP     int        `json:"maxHp"`
	Shield    int        `json:"shield"`
	MaxShield int        `json:"maxShield"`
	Upgrades  Upgrades   `json:"upgrades"`
	Inventory Inventory  `json:"inventory"`
	MapName   string     `json:"map"`
	Bounds    [2]float64 `json:"bounds"`
}

// PlayerEventMsg announces join/leave
type PlayerEventMsg struct {
	PlayerID int64  `json:"playerId"`
	Nickname string `json:"nickname,omitempty"`
}

// ProjectileFiredMsg announces a new projectile
type ProjectileFiredMsg struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	TargetID string  `json:"targetId,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Kind     string  `json:"kind"`
}

// ProjectileDoneMsg announces projectile removal
type ProjectileDoneMsg struct {
	ID     string `json:"id"`
	Reason string `json:"reason"` // hit | expired | orphaned | out_of_bounds
}

// EntityDamagedMsg reports applied damage
type EntityDamagedMsg struct {
	EntityID string `json:"entityId"`
	ByID     string `json:"byId,omitempty"`
	Damage   int    `json:"damage"`
	HP       int    `json:"hp"`
	Shield   int    `json:"shield"`
}

// EntityDestroyedMsg reports a kill
type EntityDestroyedMsg struct {
	EntityID string `json:"entityId"`
	ByID     string `json:"byId,omitempty"`
}

// ExplosionOutMsg is the broadcast visual event
type ExplosionOutMsg struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Kind string  `json:"kind,omitempty"`
}

// StopCombatMsg carries the teardown reason
type StopCombatMsg struct {
	TargetID string `json:"targetId,omitempty"`
	Reason   string `json:"reason"` // stopped | out_of_range | target_destroyed | disconnect
}

// CombatUpdateMsg confirms an active engagement
type CombatUpdateMsg struct {
	TargetID string `json:"targetId"`
	Token    string `json:"token"`
}

// ErrorMsg carries a machine-readable code plus a human hint
type ErrorMsg struct {
	Code string `json:"code"`
	Msg  string `json:"msg,omitempty"`
}

// HeartbeatAckMsg returns the server clock for drift measurement
type HeartbeatAckMsg struct {
	ServerTime int64  `json:"serverTime"`
	Tick       uint64 `json:"tick"`
}

// PositionAckMsg confirms the last accepted movement update
type PositionAckMsg struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Tick uint64  `json:"tick"`
}

// ChatOutMsg relays a chat line
type ChatOutMsg struct {
	PlayerID int64  `json:"playerId"`
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
}

// PlayerDataMsg is the session snapshot answering request_player_data and
// confirming upgrade purchases
type PlayerDataMsg struct {
	PlayerID  int64     `json:"playerId"`
	Nickname  string    `json:"nickname"`
	HP        int       `json:"hp"`
	MaxHP     int       `json:"maxHp"`
	Shield    int       `json:"shield"`
	MaxShield int       `json:"maxShield"`
	Upgrades  Upgrades  `json:"upgrades"`
	Inventory Inventory `json:"inventory"`
	Rank      int       `json:"rank"`
}

// RespawnAckMsg confirms a respawn and carries the new position
type RespawnAckMsg struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	HP     int     `json:"hp"`
	Shield int     `json:"shield"`
}

// MonitorReportMsg is the privileged world snapshot
type MonitorReportMsg struct {
	Tick        uint64 `json:"tick"`
	Players     int    `json:"players"`
	NPCs        int    `json:"npcs"`
	Projectiles int    `json:"projectiles"`
	Combats     int    `json:"combats"`
}

// Compact array encodings for high-frequency payloads. Ordered value arrays
// instead of keyed records; positions rounded to one decimal.

// EncodeRemotePlayerUpdate packs one session position tick:
// [id, x, y, vx, vy, rotation, tick, nickname, rank, hp, maxHp, shield, maxShield]
func EncodeRemotePlayerUpdate(s *PlayerSession, tick uint64) []interface{} {
	return []interface{}{
		s.PlayerID,
		round1(s.X), round1(s.Y),
		round1(s.VX), round1(s.VY),
		round1(s.Rotation),
		tick,
		s.Nickname, s.Rank,
		s.HP, s.MaxHP, s.Shield, s.MaxShield,
	}
}

// RemotePlayerUpdate is the decoded form of the compact position tick
type RemotePlayerUpdate struct {
	PlayerID  int64
	X, Y      float64
	VX, VY    float64
	Rotation  float64
	Tick      uint64
	Nickname  string
	Rank      int
	HP        int
	MaxHP     int
	Shield    int
	MaxShield int
}

// DecodeRemotePlayerUpdate unpacks a compact position tick that went
// through JSON (all numbers arrive as float64)
func DecodeRemotePlayerUpdate(arr []interface{}) (RemotePlayerUpdate, error) {
	var u RemotePlayerUpdate
	if len(arr) != 13 {
		return u, fmt.Errorf("remote_player_update: want 13 fields, got %d", len(arr))
	}
	num := func(i int) (float64, error) {
		f, ok := arr[i].(float64)
		if !ok {
			return 0, fmt.Errorf("remote_player_update: field %d not a number", i)
		}
		return f, nil
	}
	var err error
	var f float64
	if f, err = num(0); err != nil {
		return u, err
	}
	u.PlayerID = int64(f)
	if u.X, err = num(1); err != nil {
		return u, err
	}
	if u.Y, err = num(2); err != nil {
		return u, err
	}
	if u.VX, err = num(3); err != nil {
		return u, err
	}
	if u.VY, err = num(4); err != nil {
		return u, err
	}
	if u.Rotation, err = num(5); err != nil {
		return u, err
	}
	if f, err = num(6); err != nil {
		return u, err
	}
	u.Tick = uint64(f)
	var ok bool
	if u.Nickname, ok = arr[7].(string); !ok {
		return u, fmt.Errorf("remote_player_update: field 7 not a string")
	}
	if f, err = num(8); err != nil {
		return u, err
	}
	u.Rank = int(f)
	if f, err = num(9); err != nil {
		return u, err
	}
	u.HP = int(f)
	if f, err = num(10); err != nil {
		return u, err
	}
	u.MaxHP = int(f)
	if f, err = num(11); err != nil {
		return u, err
	}
	u.Shield = int(f)
	if f, err = num(12); err != nil {
		return u, err
	}
	u.MaxShield = int(f)
	return u, nil
}

// EncodeNPCUpdate packs one NPC for the bulk snapshot:
// [id, type, x, y, rotation, hp, maxHp, shield, maxShield, behaviorCode]
func EncodeNPCUpdate(n *NPC) []interface{} {
	return []interface{}{
		n.ID, n.Kind,
		round1(n.X), round1(n.Y), round1(n.Rotation),
		n.HP, n.MaxHP(), n.Shield, n.MaxShield(),
		int(n.Behavior),
	}
}

// EncodeProjectileUpdate packs one homing projectile position: [id, x, y]
func EncodeProjectileUpdate(p *Projectile) []interface{} {
	return []interface{}{p.ID, round1(p.X), round1(p.Y)}
}
