package main

import (
	"log"
	"sync"
	"time"
)

// Gameplay event types persisted for balance analysis
const (
	EvtPlayerJoin  = "player_join"
	EvtPlayerLeave = "player_leave"
	EvtPlayerDeath = "player_death"
	EvtNPCKill     = "npc_kill"
)

// gameEvent is one queued tracking record
type gameEvent struct {
	Type     string
	PlayerID int64
	Detail   string
	At       time.Time
}

// EventTracker persists gameplay events through a buffered channel and a
// background writer, so the tick loop never touches the database. A full
// queue drops events instead of blocking.
type EventTracker struct {
	store  *ProfileStore // nil disables persistence
	events chan gameEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewEventTracker starts the background writer
func NewEventTracker(store *ProfileStore) *EventTracker {
	t := &EventTracker{
		store:  store,
		events: make(chan gameEvent, 1024),
		stop:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writer()
	return t
}

// Track enqueues an event without blocking
func (t *EventTracker) Track(evtType string, playerID int64, detail string) {
	if t == nil {
		return
	}
	select {
	case t.events <- gameEvent{Type: evtType, PlayerID: playerID, Detail: detail, At: time.Now().UTC()}:
	default:
		// queue full, drop rather than stall the game loop
	}
}

// Stop drains and shuts down the writer
func (t *EventTracker) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *EventTracker) writer() {
	defer t.wg.Done()
	for {
		select {
		case evt := <-t.events:
			t.write(evt)
		case <-t.stop:
			for {
				select {
				case evt := <-t.events:
					t.write(evt)
				default:
					return
				}
			}
		}
	}
}

func (t *EventTracker) write(evt gameEvent) {
	if t.store == nil {
		return
	}
	if err := t.store.RecordEvent(evt.Type, evt.PlayerID, evt.Detail); err != nil {
		log.Printf("event write error: %v", err)
	}
}
