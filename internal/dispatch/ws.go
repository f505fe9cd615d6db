package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

// assignmentMessage is what a connected chair receives the moment it is
// matched. The chair still learns the authoritative status through polling.
type assignmentMessage struct {
	RideID      string       `json:"ride_id"`
	Pickup      models.Coord `json:"pickup_coordinate"`
	Destination models.Coord `json:"destination_coordinate"`
}

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(msg assignmentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// WSRegistry tracks connected chair sessions and implements Notifier.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*wsSession), logger: logger}
}

func (r *WSRegistry) Add(chairID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[chairID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[chairID] = &wsSession{conn: conn}
}

func (r *WSRegistry) Remove(chairID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[chairID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, chairID)
	}
}

func (r *WSRegistry) RideAssigned(chairID string, ride models.Ride) {
	r.mu.RLock()
	s, ok := r.sessions[chairID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	msg := assignmentMessage{RideID: ride.ID, Pickup: ride.Pickup, Destination: ride.Destination}
	if err := s.send(msg); err != nil {
		if r.logger != nil {
			r.logger.Warn("ws push failed", "chair_id", chairID, "error", err)
		}
		r.Remove(chairID)
	}
}
