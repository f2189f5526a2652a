// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	applog "spectrum/internal/log"

	"github.com/gorilla/websocket"
)

// DefaultWebSocketPath is where clients connect.
const DefaultWebSocketPath = "/ws"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	Addr        string        // listen address; empty means do not listen, serve Handler yourself
	Path        string        // defaults to DefaultWebSocketPath
	QueueSize   int           // broadcast queue length, defaults to 256
	MinInterval time.Duration // minimum gap between Periodic payloads of one stream; faster ones are dropped
}

// WebSocketTransport broadcasts every payload as JSON to all connected
// clients.
//
// Thread Safety:
//   - Send only enqueues; a single goroutine writes to clients
//   - A full queue drops any payload; MinInterval only thins Periodic ones
//   - Clients are removed on the first write or read error
type WebSocketTransport struct {
	cfg       WebSocketConfig
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	mux       *http.ServeMux

	mu       sync.Mutex
	closed   bool
	lastSend map[string]time.Time // per Periodic stream
	dropped  uint64
	done     chan struct{}
}

// NewWebSocketTransport creates a new WebSocketTransport and, if cfg.Addr is
// set, starts serving it.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.Path == "" {
		cfg.Path = DefaultWebSocketPath
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	wst := &WebSocketTransport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualisers are usually served from elsewhere
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, cfg.QueueSize),
		mux:       http.NewServeMux(),
		done:      make(chan struct{}),
		lastSend:  make(map[string]time.Time),
	}
	wst.mux.HandleFunc(cfg.Path, wst.handleWebSocket)

	go wst.handleBroadcasts()

	if cfg.Addr != "" {
		wst.server = &http.Server{
			Addr:              cfg.Addr,
			Handler:           wst.mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			applog.Infof("WebSocketTransport: Starting WebSocket server on %s%s", cfg.Addr, cfg.Path)
			if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				applog.Errorf("WebSocketTransport: Server error: %v", err)
			}
		}()
	}

	return wst
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.mux
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns how many payloads were discarded.
func (wst *WebSocketTransport) Dropped() uint64 {
	wst.mu.Lock()
	defer wst.mu.Unlock()
	return wst.dropped
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Reading is only used to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.removeClient(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		conn.Close()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	defer close(wst.done)

	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(time.Second))
			if err := client.WriteJSON(data); err != nil {
				applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. It never blocks.
func (wst *WebSocketTransport) Send(data any) error {
	wst.mu.Lock()
	defer wst.mu.Unlock()

	if wst.closed {
		return ErrClosed
	}

	now := time.Now()
	stream, periodic := "", false
	if p, ok := data.(Periodic); ok && wst.cfg.MinInterval > 0 {
		stream, periodic = p.Stream(), true
		if last, seen := wst.lastSend[stream]; seen && now.Sub(last) < wst.cfg.MinInterval {
			wst.dropped++
			return nil
		}
	}

	select {
	case wst.broadcast <- data:
		if periodic {
			wst.lastSend[stream] = now
		}
	default:
		wst.dropped++
	}
	return nil
}

// Close shuts down the WebSocket server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	wst.mu.Lock()
	if wst.closed {
		wst.mu.Unlock()
		return nil
	}
	wst.closed = true
	close(wst.broadcast)
	wst.mu.Unlock()

	applog.Info("WebSocketTransport: Closing server")
	<-wst.done

	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]struct{})
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
