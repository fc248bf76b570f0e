package main

import (
	"encoding/json"
	"log"

	"github.com/vmihailenco/msgpack/v5"
)

// Spatial broadcast fan-out: every variant serializes the message once and
// hands the same bytes to each recipient. Sends to closed or backpressured
// connections are dropped by the endpoint, never awaited.

// broadcastAll sends a message to every session, excluding the optional
// sender (0 = nobody excluded)
func (w *World) broadcastAll(msg Envelope, except int64) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}
	for _, s := range w.players {
		if s.PlayerID == except {
			continue
		}
		s.SendRaw(data)
	}
}

// broadcastNear sends a message to the subset of sessions within radius of
// a point, excluding the optional sender
func (w *World) broadcastNear(x, y, radius float64, msg Envelope, except int64) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}
	for _, s := range w.players {
		if s.PlayerID == except {
			continue
		}
		if !WithinRadius(x, y, radius, s.X, s.Y) {
			continue
		}
		s.SendRaw(data)
	}
}

// flushMovement drains the coalesced movement queue: one compact
// remote_player_update per session, most-recent-wins, sent to all other
// sessions. Runs at the broadcast rate, bounding fan-out volume
// independent of client send rate.
func (w *World) flushMovement() {
	if len(w.pendingMoves) == 0 {
		return
	}
	for pid := range w.pendingMoves {
		s := w.players[pid]
		if s == nil {
			delete(w.pendingMoves, pid)
			continue
		}
		w.broadcastAll(Envelope{
			T:    MsgRemotePlayerUpdate,
			Data: EncodeRemotePlayerUpdate(s, w.tick),
		}, pid)
		delete(w.pendingMoves, pid)
	}
}

// npcSnapshot is the msgpack form of the bulk NPC update for clients that
// opted into binary frames at join
type npcSnapshot struct {
	T    string          `msgpack:"type"`
	Tick uint64          `msgpack:"tick"`
	NPCs [][]interface{} `msgpack:"npcs"`
}

// broadcastNPCSnapshots pushes a bulk NPC snapshot to each session,
// filtered to NPCs within the map's interest radius of that session
func (w *World) broadcastNPCSnapshots() {
	if len(w.npcs) == 0 || len(w.players) == 0 {
		return
	}
	for _, s := range w.players {
		var batch [][]interface{}
		for _, n := range w.npcs {
			if !WithinRadius(s.X, s.Y, w.cfg.InterestRadius, n.X, n.Y) {
				continue
			}
			batch = append(batch, EncodeNPCUpdate(n))
		}
		if len(batch) == 0 {
			continue
		}
		if s.Binary {
			data, err := msgpack.Marshal(npcSnapshot{T: MsgNPCBulkUpdate, Tick: w.tick, NPCs: batch})
			if err != nil {
				log.Printf("npc snapshot msgpack error: %v", err)
				continue
			}
			if s.endpoint != nil && s.endpoint.Open() {
				s.endpoint.SendBinary(data)
			}
			continue
		}
		s.Send(Envelope{T: MsgNPCBulkUpdate, Data: batch})
	}
}

// broadcastProjectileUpdates pushes the compact homing position batch
func (w *World) broadcastProjectileUpdates() {
	var batch [][]interface{}
	for _, p := range w.projectiles {
		if !p.HasTarget() {
			continue
		}
		batch = append(batch, EncodeProjectileUpdate(p))
	}
	if len(batch) == 0 {
		return
	}
	w.broadcastAll(Envelope{T: MsgProjectileUpdates, Data: batch}, 0)
}
