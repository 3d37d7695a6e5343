// Package dashboard provides a real-time WebSocket monitor for keel.
//
// The server broadcasts task transitions, prune events, and watcher
// status to connected WebSocket clients, and serves a JSON status
// endpoint for one-shot queries. It implements tracker.EventSink so the
// tracker can notify it after each durable lifecycle change.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/marcward/keel/internal/task"
	"github.com/marcward/keel/internal/watcher"
)

// MessageType defines the type of dashboard message.
type MessageType string

const (
	// MessageTypeTransition indicates a task changed status.
	MessageTypeTransition MessageType = "transition"

	// MessageTypePrune indicates links were pruned from a task.
	MessageTypePrune MessageType = "prune"

	// MessageTypeWatcherStatus carries the watcher registry's state.
	MessageTypeWatcherStatus MessageType = "watcher_status"

	// MessageTypeFileChange indicates a watched file changed on disk.
	MessageTypeFileChange MessageType = "file_change"
)

// Message is a dashboard broadcast message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TransitionData describes a status change.
type TransitionData struct {
	TaskID    int64  `json:"task_id"`
	Title     string `json:"title"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Agent     string `json:"agent,omitempty"`
}

// PruneData describes pruned file links.
type PruneData struct {
	TaskID int64    `json:"task_id"`
	Paths  []string `json:"paths"`
}

// FileChangeData describes a filesystem change attributed to tasks.
type FileChangeData struct {
	Path    string  `json:"path"`
	Op      string  `json:"op"`
	TaskIDs []int64 `json:"task_ids"`
}

// StatusSource supplies the watcher status for broadcasts and the
// /status endpoint.
type StatusSource func() watcher.Status

// Server manages WebSocket connections and broadcasts lifecycle messages.
type Server struct {
	addr   string
	status StatusSource
	logger *log.Logger

	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server listening on addr. status may be
// nil when no watcher is running.
func NewServer(addr string, status StatusSource, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      addr,
		status:    status,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the HTTP server and broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the server's bound address, useful when listening on :0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// TaskTransitioned implements tracker.EventSink.
func (s *Server) TaskTransitioned(t *task.Task, old, new task.Status, agent string) {
	s.send(MessageTypeTransition, TransitionData{
		TaskID:    t.ID,
		Title:     t.Title,
		OldStatus: old.String(),
		NewStatus: new.String(),
		Agent:     agent,
	})
	s.broadcastWatcherStatus()
}

// FilesPruned implements tracker.EventSink.
func (s *Server) FilesPruned(taskID int64, paths []string) {
	s.send(MessageTypePrune, PruneData{TaskID: taskID, Paths: paths})
}

// FileChanged broadcasts a watcher event attributed to its tasks.
func (s *Server) FileChanged(ev watcher.Event) {
	s.send(MessageTypeFileChange, FileChangeData{
		Path:    ev.Path,
		Op:      ev.Op.String(),
		TaskIDs: ev.TaskIDs,
	})
}

func (s *Server) broadcastWatcherStatus() {
	if s.status == nil {
		return
	}
	s.send(MessageTypeWatcherStatus, s.status())
}

func (s *Server) send(typ MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", typ, err)
		return
	}

	msg := Message{Type: typ, Timestamp: time.Now(), Data: payload}

	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop fans queued messages out to all connected clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Write outside the lock so a slow client cannot block
			// connection management.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	s.broadcastWatcherStatus()

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and detects client disconnects.
// Client messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var st watcher.Status
	if s.status != nil {
		st = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Printf("Failed to write status: %v", err)
	}
}
