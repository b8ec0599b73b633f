// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widget

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/model"
)

// Hub is the push channel spec §11 asks for: rather than polling
// GET /widgets/:kind on a timer, a dashboard subscribes once at
// GET /widgets/stream and gets a message every time Manager recomputes a
// widget (see Manager.OnUpdate).
type Hub struct {
	upgrader websocket.Upgrader
	log      *logging.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// NewHub constructs an empty Hub. Origin checking is left permissive —
// the dashboard is a co-located, same-host client (spec §1) and this
// spec never defines a CORS allowlist to check against.
func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log.With("component", "widget_hub"),
		conns:    make(map[*websocket.Conn]chan []byte),
	}
}

// pushUpdate is the wire message one Broadcast sends to every subscriber.
type pushUpdate struct {
	Kind     string               `json:"kind"`
	Snapshot model.WidgetSnapshot `json:"snapshot"`
}

// HandleWS upgrades the request and keeps the connection registered until
// the client disconnects or the write pump errors. Mount at
// GET /widgets/stream.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("widget: websocket upgrade failed", "error", err)
		return
	}

	out := make(chan []byte, 16)
	h.mu.Lock()
	h.conns[conn] = out
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		close(out)
		conn.Close()
	}()

	go func() {
		for msg := range out {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// This is a push-only channel; reading is purely how a client
	// disconnect (or any client message, which is ignored) is detected.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends snap to every currently subscribed connection. A
// subscriber whose outbound buffer is already full has the update
// dropped rather than blocking the widget recompute path that called it.
func (h *Hub) Broadcast(kind Kind, snap model.WidgetSnapshot) {
	payload, err := json.Marshal(pushUpdate{Kind: string(kind), Snapshot: snap})
	if err != nil {
		h.log.Warn("widget: marshaling push update failed", "kind", kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, out := range h.conns {
		select {
		case out <- payload:
		default:
			h.log.Warn("widget: subscriber buffer full, dropping update", "kind", kind, "remote", conn.RemoteAddr())
		}
	}
}
