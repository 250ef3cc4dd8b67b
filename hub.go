/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/secretsanta/santa"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StatusMessage is broadcast to every connection after each draw or reset.
type StatusMessage struct {
	Type string `json:"type"` // "status"
	santa.Status
}

// AssignmentsMessage is sent only to coordinator connections.
type AssignmentsMessage struct {
	Type  string       `json:"type"` // "assignments"
	Pairs []santa.Pair `json:"pairs"`
}

type Client struct {
	conn        *websocket.Conn
	send        chan any
	coordinator bool
}

// Hub fans game updates out to connected browsers.
type Hub struct {
	game    *santa.Game
	clients map[*Client]bool
	done    <-chan struct{}

	register chan *Client
	unreg    chan *Client
	notify   chan struct{}
}

// newHub returns a hub that stops serving once ctx is done.
func newHub(ctx context.Context, game *santa.Game) *Hub {
	return &Hub{
		game:     game,
		clients:  make(map[*Client]bool),
		done:     ctx.Done(),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		notify:   make(chan struct{}, 1),
	}
}

// Notify schedules a broadcast. Bursts of calls collapse into one.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			if h.sendTo(c, h.statusMessage()) && c.coordinator {
				h.sendTo(c, h.assignmentsMessage())
			}

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case <-h.notify:
			status := h.statusMessage()
			var assignments *AssignmentsMessage

			for c := range h.clients {
				if !h.sendTo(c, status) || !c.coordinator {
					continue
				}
				if assignments == nil {
					msg := h.assignmentsMessage()
					assignments = &msg
				}
				h.sendTo(c, *assignments)
			}
		}
	}
}

// sendTo queues msg for c, dropping the client if it has fallen behind.
func (h *Hub) sendTo(c *Client, msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		delete(h.clients, c)
		close(c.send)
		return false
	}
}

func (h *Hub) statusMessage() StatusMessage {
	return StatusMessage{Type: "status", Status: h.game.Status()}
}

func (h *Hub) assignmentsMessage() AssignmentsMessage {
	return AssignmentsMessage{Type: "assignments", Pairs: h.game.Assignments()}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWS(cfg *Config, sg *santaGame) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		name, _ := sg.sessions.current(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:        conn,
			send:        make(chan any, 8),
			coordinator: sg.isCoordinator(name),
		}

		select {
		case sg.hub.register <- client:
		case <-sg.hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(sg.hub)
	}
}

// readPump only watches for the connection closing; browsers never send anything.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
