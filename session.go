package main

import (
	"strconv"
	"time"
)

const (
	// effective-position blending: a client report younger than this and
	// within the drift bound overrides the server-confirmed position
	clientPosMaxAge   = 300 * time.Millisecond
	clientPosMaxDrift = 150.0

	teleportJitterMul = 1.5 // slack over configured speed for network jitter
)

// Endpoint is the transport side of a session. Live connections are
// *Client; tests substitute recording fakes.
type Endpoint interface {
	SendJSON(msg interface{})
	SendRaw(data []byte)
	SendBinary(data []byte)
	Open() bool
	CloseWithPolicy(reason string)
}

// Upgrades holds the per-track upgrade levels
type Upgrades struct {
	HP     int `json:"hp"`
	Shield int `json:"shield"`
	Speed  int `json:"speed"`
	Damage int `json:"damage"`
}

// Inventory holds the player's spendable resources
type Inventory struct {
	Credits    int `json:"credits"`
	Cosmos     int `json:"cosmos"`
	Experience int `json:"experience"`
	Honor      int `json:"honor"`
	Ammo       int `json:"ammo"`
	Rockets    int `json:"rockets"`
}

// PlayerSession is the authoritative state of one connected player. The
// stable PlayerID survives reconnects and keys the world's session map.
type PlayerSession struct {
	PlayerID int64
	CID      string // connection id issued at join, checked by the gate
	Nickname string
	Admin    bool
	Rank     int

	X, Y     float64
	Rotation float64
	VX, VY   float64

	HP        int
	MaxHP     int
	Shield    int
	MaxShield int
	Alive     bool

	Upgrades  Upgrades
	Inventory Inventory

	// client-reported position, kept separately for effective-position
	// blending during combat
	ClientX, ClientY float64
	ClientPosAt      time.Time

	// anti-teleport state
	LastGoodX, LastGoodY float64
	LastMoveAt           time.Time

	LastInput     time.Time
	LastCombatEnd time.Time // repair eligibility gates on time since combat

	// rate-limit counters
	MsgWindowStart  time.Time
	MsgCount        int
	MoveWindowStart time.Time
	MoveCount       int

	Binary bool // client opted into msgpack NPC snapshots

	endpoint Endpoint
}

// NewPlayerSession builds a session from a loaded profile
func NewPlayerSession(profile *Profile, cid string, ep Endpoint, now time.Time) *PlayerSession {
	s := &PlayerSession{
		PlayerID:   profile.PlayerID,
		CID:        cid,
		Nickname:   profile.Nickname,
		Admin:      profile.Admin,
		Rank:       profile.Rank,
		Upgrades:   profile.Upgrades,
		Inventory:  profile.Inventory,
		HP:         profile.HP,
		Shield:     profile.Shield,
		Alive:      profile.HP > 0,
		LastInput:  now,
		LastMoveAt: now,
		endpoint:   ep,
	}
	s.MaxHP = BasePlayerHP + s.Upgrades.HP*int(UpgradeCatalogMap[UpgradeHP].PerLevel)
	s.MaxShield = BasePlayerShield + s.Upgrades.Shield*int(UpgradeCatalogMap[UpgradeShield].PerLevel)
	if s.HP > s.MaxHP {
		s.HP = s.MaxHP
	}
	if s.Shield > s.MaxShield {
		s.Shield = s.MaxShield
	}
	return s
}

// Key returns the canonical connection id derived from the stable player
// id. The gate accepts it as a fallback during reconnection races.
func (s *PlayerSession) Key() string {
	return canonicalCID(s.PlayerID)
}

func canonicalCID(playerID int64) string {
	return "player-" + strconv.FormatInt(playerID, 10)
}

// MaxSpeed returns the session's configured top speed including upgrades
func (s *PlayerSession) MaxSpeed() float64 {
	return BasePlayerSpeed + float64(s.Upgrades.Speed)*UpgradeCatalogMap[UpgradeSpeed].PerLevel
}

// TakeDamage applies damage with shield absorbing before health. HP and
// shield never go negative. Returns true when the hit was lethal.
func (s *PlayerSession) TakeDamage(dmg int) bool {
	if !s.Alive || dmg <= 0 {
		return false
	}
	if s.Shield > 0 {
		if dmg <= s.Shield {
			s.Shield -= dmg
			return false
		}
		dmg -= s.Shield
		s.Shield = 0
	}
	s.HP -= dmg
	if s.HP <= 0 {
		s.HP = 0
		s.Alive = false
		return true
	}
	return false
}

// MaxMoveDistance returns the anti-teleport bound: the farthest the
// session could travel at its configured speed over elapsed, with a
// generous multiplier to absorb jitter and update bursts.
func (s *PlayerSession) MaxMoveDistance(elapsed time.Duration) float64 {
	sec := elapsed.Seconds()
	if sec < 0.05 {
		sec = 0.05 // update bursts collapse elapsed to near zero
	}
	return s.MaxSpeed() * sec * teleportJitterMul
}

// ApplyMove commits an accepted movement update
func (s *PlayerSession) ApplyMove(m PositionMsg, now time.Time) {
	s.X = m.X
	s.Y = m.Y
	s.Rotation = m.Rotation
	s.VX = m.VX
	s.VY = m.VY
	s.ClientX = m.X
	s.ClientY = m.Y
	s.ClientPosAt = now
	s.LastGoodX = m.X
	s.LastGoodY = m.Y
	s.LastMoveAt = now
	s.LastInput = now
}

// EffectivePosition resolves the position combat checks should use.
// Precedence: a client report younger than clientPosMaxAge and within
// clientPosMaxDrift of the server-confirmed position wins (reduces
// jitter-induced combat flapping); otherwise the server position.
func (s *PlayerSession) EffectivePosition(now time.Time) (float64, float64) {
	if !s.ClientPosAt.IsZero() && now.Sub(s.ClientPosAt) <= clientPosMaxAge {
		if Distance(s.X, s.Y, s.ClientX, s.ClientY) <= clientPosMaxDrift {
			return s.ClientX, s.ClientY
		}
	}
	return s.X, s.Y
}

// Respawn restores vitals at the given position
func (s *PlayerSession) Respawn(x, y float64) {
	s.X = x
	s.Y = y
	s.VX = 0
	s.VY = 0
	s.HP = s.MaxHP
	s.Shield = s.MaxShield
	s.Alive = true
}

// Send forwards a message to the session's connection when it is open.
// A slow or dead connection is skipped, never awaited.
func (s *PlayerSession) Send(msg interface{}) {
	if s.endpoint != nil && s.endpoint.Open() {
		s.endpoint.SendJSON(msg)
	}
}

// SendRaw forwards pre-marshaled bytes
func (s *PlayerSession) SendRaw(data []byte) {
	if s.endpoint != nil && s.endpoint.Open() {
		s.endpoint.SendRaw(data)
	}
}
