package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client is one WebSocket connection. It implements Endpoint; all game
// state it touches lives behind the world's command queue, so the pumps
// never mutate sessions directly.
type Client struct {
	hub        *Hub
	world      *World
	conn       *websocket.Conn
	send       chan []byte
	peer       *Peer
	remoteAddr string

	closeOnce sync.Once
	closedMu  sync.Mutex
	closed    bool
}

// NewClient wraps an upgraded connection and binds it to a fresh peer
func NewClient(hub *Hub, world *World, conn *websocket.Conn, remoteAddr string) *Client {
	c := &Client{
		hub:        hub,
		world:      world,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
	c.peer = NewPeer(c)
	return c
}

// ReadPump reads messages from the WebSocket connection and posts them
// to the world goroutine
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.markClosed()
		c.conn.Close()

		peer := c.peer
		c.world.Post(func(w *World) {
			if peer.session != nil && w.players[peer.session.PlayerID] == peer.session {
				w.RemoveSession(peer.session)
			}
		})
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		var env InEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("unmarshal error from %s: %v", c.remoteAddr, err)
			continue
		}

		peer := c.peer
		c.world.Post(func(w *World) {
			w.router.Dispatch(peer, env)
		})
	}
}

// WritePump writes queued messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markClosed()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks frames queued by SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON marshals and queues a text message
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes as a text message. A full queue
// drops the message rather than stalling the world goroutine.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// SendBinary queues pre-marshaled bytes as a binary frame, prefixed
// with the 0xFF marker so WritePump can tell it from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// Open reports whether the connection still accepts outbound messages
func (c *Client) Open() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return !c.closed
}

// CloseWithPolicy sends a 1008 close frame carrying the violation
// reason, then tears the connection down
func (c *Client) CloseWithPolicy(reason string) {
	c.closeOnce.Do(func() {
		c.markClosed()
		deadline := time.Now().Add(writeWait)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
		c.conn.Close()
	})
}

func (c *Client) markClosed() {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()
}
