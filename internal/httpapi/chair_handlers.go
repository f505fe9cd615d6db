package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
)

func (s *Server) handleChairRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string `json:"name"`
		Model              string `json:"model"`
		ChairRegisterToken string `json:"chair_register_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Model == "" || req.ChairRegisterToken == "" {
		writeMessage(w, http.StatusBadRequest, "name, model and chair_register_token are required")
		return
	}
	chair, err := s.Store.CreateChair(r.Context(), req.Name, req.Model, req.ChairRegisterToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":           chair.ID,
		"owner_id":     chair.OwnerID,
		"access_token": chair.AccessToken,
	})
}

func (s *Server) handleChairActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsActive == nil {
		writeMessage(w, http.StatusBadRequest, "is_active is required")
		return
	}
	chair := chairFrom(r.Context())
	if err := s.Store.SetChairActivity(r.Context(), chair.ID, *req.IsActive); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChairCoordinate(w http.ResponseWriter, r *http.Request) {
	var at models.Coord
	if err := json.NewDecoder(r.Body).Decode(&at); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	chair := chairFrom(r.Context())
	recordedAt, err := s.Store.RecordCoordinate(r.Context(), chair.ID, at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loc := models.ChairLocation{
		ChairID:    chair.ID,
		Latitude:   at.Latitude,
		Longitude:  at.Longitude,
		RecordedAt: recordedAt,
	}
	// telemetry fan-out and the index update are both best-effort; the
	// store write above is the authoritative one
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(loc); err != nil {
			s.logger.Warn("location publish failed", "chair_id", chair.ID, "error", err)
		}
	}
	if err := s.Index.Upsert(r.Context(), loc); err != nil {
		s.logger.Warn("chair index update failed", "chair_id", chair.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"recorded_at": recordedAt.UnixMilli(),
	})
}

func (s *Server) handleChairNotification(w http.ResponseWriter, r *http.Request) {
	chair := chairFrom(r.Context())
	if chair.CurrentRideID == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":           nil,
			"retry_after_ms": notify.NoRideRetryAfterChair.Milliseconds(),
		})
		return
	}

	rideID := *chair.CurrentRideID
	status, _, err := s.Store.DrainNotification(r.Context(), rideID, notify.AudienceChair)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Store.RideByID(r.Context(), rideID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.Store.UserByID(r.Context(), ride.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"ride_id": ride.ID,
			"user": map[string]string{
				"id":   user.ID,
				"name": user.Firstname + " " + user.Lastname,
			},
			"pickup_coordinate":      coordOf(ride.Pickup),
			"destination_coordinate": coordOf(ride.Destination),
			"status":                 status,
		},
		"retry_after_ms": notify.RetryAfter(notify.AudienceChair, status, &chair, ride).Milliseconds(),
	})
}

// handleChairRideStatus accepts the two chair-reported transitions: ENROUTE
// when the chair starts toward the pickup, CARRYING once the rider is
// aboard. PICKUP and ARRIVED are derived from coordinates, COMPLETED from
// the rider's evaluation; none of them may be posted here.
func (s *Server) handleChairRideStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status != lifecycle.StatusEnroute && req.Status != lifecycle.StatusCarrying {
		writeMessage(w, http.StatusBadRequest, "status must be ENROUTE or CARRYING")
		return
	}
	chair := chairFrom(r.Context())
	rideID := mux.Vars(r)["ride_id"]
	if err := s.Store.ChairStatusUpdate(r.Context(), chair.ID, rideID, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
}

func (s *Server) handleChairWS(w http.ResponseWriter, r *http.Request) {
	chair := chairFrom(r.Context())
	if mux.Vars(r)["chair_id"] != chair.ID {
		writeMessage(w, http.StatusForbidden, "chair_id does not match token")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.WSReg.Add(chair.ID, conn)
}
