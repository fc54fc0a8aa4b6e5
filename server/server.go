package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/processor"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Message is what websocket clients receive.
type Message struct {
	Type    string             `json:"type"`
	Content string             `json:"content"`
	Data    *processor.Summary `json:"data,omitempty"`
}

// Message types.
const (
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeFinished = "finished"
)

type Config struct {
	Addr   string
	Logger *slog.Logger
}

// StatusServer reports sweep activity over HTTP. /health answers OK,
// /status returns the last summary of each sweep and /ws streams progress
// and completion messages as they happen.
type StatusServer struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    map[string]processor.Summary
}

// client is one websocket connection and its queue of pending messages.
type client struct {
	conn *websocket.Conn
	send chan Message
}

func NewWithConfig(config Config) *StatusServer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusServer{
		config:  config,
		logger:  logger,
		clients: make(map[*client]struct{}),
		last:    make(map[string]processor.Summary),
	}
}

func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *StatusServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Progress is a processor.ProcessorConfig.OnProgress callback.
func (s *StatusServer) Progress(sweep string, summary processor.Summary) {
	s.broadcast(Message{
		Type:    TypeProgress,
		Content: fmt.Sprintf("%s sweep: %d processed, %d failed", sweep, summary.Processed, summary.Failed),
		Data:    &summary,
	})
}

// Finished is a processor.ProcessorConfig.OnFinish callback.
func (s *StatusServer) Finished(summary processor.Summary) {
	s.mu.Lock()
	s.last[summary.Sweep] = summary
	s.mu.Unlock()

	s.broadcast(Message{
		Type: TypeFinished,
		Content: fmt.Sprintf("%s sweep finished: %d processed, %d succeeded, %d failed",
			summary.Sweep, summary.Processed, summary.Succeeded, summary.Failed),
		Data: &summary,
	})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := make(map[string]processor.Summary, len(s.last))
	for sweep, summary := range s.last {
		last[sweep] = summary
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(last); err != nil {
		s.logger.Error("failed to write status", "error", err)
	}
}

func (s *StatusServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	c.send <- Message{Type: TypeStatus, Content: "connected"}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)

	// Clients only listen; reading notices when they go away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.remove(c)
			return
		}
	}
}

// writeLoop is the only writer of c's data frames. It closes the connection
// once c.send is closed or a write fails.
func (s *StatusServer) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Debug("dropping websocket client", "remote", c.conn.RemoteAddr().String(), "error", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(time.Second))
}

// broadcast queues msg for every client without waiting on the network.
// A client whose queue is full is dropped.
func (s *StatusServer) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Debug("dropping slow websocket client")
			s.removeLocked(c)
		}
	}
}

func (s *StatusServer) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(c)
}

// removeLocked must be called with mu held.
func (s *StatusServer) removeLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (s *StatusServer) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.removeLocked(c)
	}
}
