package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"

	"github.com/gorilla/mux"
)

func (s *Server) handleAppRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username       string `json:"username"`
		Firstname      string `json:"firstname"`
		Lastname       string `json:"lastname"`
		DateOfBirth    string `json:"date_of_birth"`
		InvitationCode string `json:"invitation_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Firstname == "" || req.Lastname == "" || req.DateOfBirth == "" {
		writeMessage(w, http.StatusBadRequest, "username, firstname, lastname and date_of_birth are required")
		return
	}
	user, err := s.Store.CreateUser(r.Context(), storage.NewUser{
		Username:       req.Username,
		Firstname:      req.Firstname,
		Lastname:       req.Lastname,
		DateOfBirth:    req.DateOfBirth,
		InvitationCode: req.InvitationCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":              user.ID,
		"access_token":    user.AccessToken,
		"invitation_code": user.InvitationCode,
	})
}

func (s *Server) handleRegisterPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}
	user := userFrom(r.Context())
	if err := s.Store.RegisterPaymentToken(r.Context(), user.ID, req.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rideCoordinates struct {
	Pickup      *models.Coord `json:"pickup_coordinate"`
	Destination *models.Coord `json:"destination_coordinate"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req rideCoordinates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Pickup == nil || req.Destination == nil {
		writeMessage(w, http.StatusBadRequest, "pickup_coordinate and destination_coordinate are required")
		return
	}
	user := userFrom(r.Context())
	ride, err := s.Store.CreateRide(r.Context(), user.ID, *req.Pickup, *req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.RidesCreated.Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ride_id": ride.ID,
		"fare":    ride.Fare,
	})
}

func (s *Server) handleEstimateFare(w http.ResponseWriter, r *http.Request) {
	var req rideCoordinates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Pickup == nil || req.Destination == nil {
		writeMessage(w, http.StatusBadRequest, "pickup_coordinate and destination_coordinate are required")
		return
	}
	user := userFrom(r.Context())
	fare, discount, err := s.Store.EstimateFare(r.Context(), user.ID, *req.Pickup, *req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"fare":     fare,
		"discount": discount,
	})
}

func (s *Server) handleEvaluateRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Evaluation *int `json:"evaluation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Evaluation == nil || *req.Evaluation < 1 || *req.Evaluation > 5 {
		writeMessage(w, http.StatusBadRequest, "evaluation must be between 1 and 5")
		return
	}

	rideID := mux.Vars(r)["ride_id"]
	user := userFrom(r.Context())
	ride, err := s.Store.RideByID(r.Context(), rideID)
	if err != nil || ride.UserID != user.ID {
		if err == nil {
			err = storage.ErrNotFound
		}
		s.writeError(w, r, err)
		return
	}

	completedAt, err := s.Store.EvaluateRide(r.Context(), rideID, *req.Evaluation, s.settle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fare":         ride.Fare,
		"completed_at": completedAt.UnixMilli(),
	})
}

func (s *Server) handleRideHistory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	rides, err := s.Store.CompletedRidesByUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(rides))
	for _, cr := range rides {
		item := map[string]any{
			"id":                     cr.Ride.ID,
			"pickup_coordinate":      coordOf(cr.Ride.Pickup),
			"destination_coordinate": coordOf(cr.Ride.Destination),
			"fare":                   cr.Ride.Fare,
			"completed_at":           cr.Ride.UpdatedAt.UnixMilli(),
			"chair": map[string]string{
				"id":    cr.ChairID,
				"owner": cr.OwnerName,
				"name":  cr.ChairName,
				"model": cr.ChairModel,
			},
		}
		if cr.Ride.Evaluation != nil {
			item["evaluation"] = *cr.Ride.Evaluation
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": items})
}

func (s *Server) handleAppNotification(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.CurrentRideID == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":           nil,
			"retry_after_ms": notify.NoRideRetryAfterApp.Milliseconds(),
		})
		return
	}

	rideID := *user.CurrentRideID
	status, _, err := s.Store.DrainNotification(r.Context(), rideID, notify.AudienceApp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.Store.RideByID(r.Context(), rideID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := map[string]any{
		"ride_id":                ride.ID,
		"pickup_coordinate":      coordOf(ride.Pickup),
		"destination_coordinate": coordOf(ride.Destination),
		"fare":                   ride.Fare,
		"status":                 status,
		"created_at":             ride.CreatedAt.UnixMilli(),
		"updated_at":             ride.UpdatedAt.UnixMilli(),
	}
	var chair *models.Chair
	if ride.ChairID != nil {
		c, err := s.Store.ChairByID(r.Context(), *ride.ChairID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		chair = &c
		stats := map[string]any{"total_rides_count": c.TotalRidesCount}
		if c.TotalRidesCount > 0 {
			stats["total_evaluation_avg"] = float64(c.TotalEvaluation) / float64(c.TotalRidesCount)
		} else {
			stats["total_evaluation_avg"] = 0.0
		}
		data["chair"] = map[string]any{
			"id":    c.ID,
			"name":  c.Name,
			"model": c.Model,
			"stats": stats,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":           data,
		"retry_after_ms": notify.RetryAfter(notify.AudienceApp, status, chair, ride).Milliseconds(),
	})
}

const defaultNearbyDistance = 50

func (s *Server) handleNearbyChairs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.Atoi(q.Get("latitude"))
	lon, lonErr := strconv.Atoi(q.Get("longitude"))
	if latErr != nil || lonErr != nil {
		writeMessage(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	distance := defaultNearbyDistance
	if d := q.Get("distance"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "distance must be an integer")
			return
		}
		distance = v
	}

	origin := models.Coord{Latitude: lat, Longitude: lon}
	locations, err := s.Index.Nearby(r.Context(), origin, distance)
	if err != nil {
		// index unavailable; fall back to the store scan
		s.logger.Warn("chair index unavailable, falling back to store", "error", err)
		locations, err = s.nearbyFromStore(r, origin, distance)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	chairs := make([]map[string]any, 0, len(locations))
	for _, loc := range locations {
		c, err := s.Store.ChairByID(r.Context(), loc.ChairID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !c.IsActive || c.CurrentRideID != nil {
			continue
		}
		chairs = append(chairs, map[string]any{
			"id":    c.ID,
			"name":  c.Name,
			"model": c.Model,
			"current_coordinate": map[string]int{
				"latitude":  loc.Latitude,
				"longitude": loc.Longitude,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chairs":       chairs,
		"retrieved_at": time.Now().UnixMilli(),
	})
}

func (s *Server) nearbyFromStore(r *http.Request, origin models.Coord, distance int) ([]models.ChairLocation, error) {
	free, err := s.Store.FreeActiveChairs(r.Context())
	if err != nil {
		return nil, err
	}
	var out []models.ChairLocation
	for _, c := range free {
		if c.Location == nil {
			continue
		}
		out = append(out, models.ChairLocation{
			ChairID:   c.ID,
			Latitude:  c.Location.Latitude,
			Longitude: c.Location.Longitude,
		})
	}
	filtered := out[:0]
	for _, loc := range out {
		at := models.Coord{Latitude: loc.Latitude, Longitude: loc.Longitude}
		if geo.Distance(origin, at) <= distance {
			filtered = append(filtered, loc)
		}
	}
	return filtered, nil
}
