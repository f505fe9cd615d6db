package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payment"
	"github.com/example/ride-dispatch/internal/storage"
)

// fakeStore implements Store with overridable hooks; unset lookups miss.
type fakeStore struct {
	user  *models.User
	chair *models.Chair
	owner *models.Owner

	createRide  func(userID string, pickup, dest models.Coord) (models.Ride, error)
	rideByID    func(id string) (models.Ride, error)
	drain       func(rideID string, aud notify.Audience) (string, bool, error)
	statusPosts []string
}

func (f *fakeStore) CreateUser(_ context.Context, in storage.NewUser) (models.User, error) {
	return models.User{ID: "u1", Username: in.Username, AccessToken: "tok", InvitationCode: "inv123"}, nil
}

func (f *fakeStore) UserByAccessToken(_ context.Context, token string) (models.User, error) {
	if f.user != nil && f.user.AccessToken == token {
		return *f.user, nil
	}
	return models.User{}, storage.ErrNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id string) (models.User, error) {
	if f.user != nil && f.user.ID == id {
		return *f.user, nil
	}
	return models.User{}, storage.ErrNotFound
}

func (f *fakeStore) RegisterPaymentToken(_ context.Context, _, _ string) error { return nil }

func (f *fakeStore) CreateRide(_ context.Context, userID string, pickup, dest models.Coord) (models.Ride, error) {
	return f.createRide(userID, pickup, dest)
}

func (f *fakeStore) RideByID(_ context.Context, id string) (models.Ride, error) {
	if f.rideByID != nil {
		return f.rideByID(id)
	}
	return models.Ride{}, storage.ErrNotFound
}

func (f *fakeStore) EstimateFare(_ context.Context, _ string, pickup, dest models.Coord) (int, int, error) {
	return geo.Fare(pickup, dest), 0, nil
}

func (f *fakeStore) EvaluateRide(_ context.Context, _ string, _ int, _ storage.SettleFunc) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeStore) CompletedRidesByUser(_ context.Context, _ string) ([]storage.CompletedRide, error) {
	return nil, nil
}

func (f *fakeStore) ChairStatusUpdate(_ context.Context, _, _, target string) error {
	f.statusPosts = append(f.statusPosts, target)
	return nil
}

func (f *fakeStore) DrainNotification(_ context.Context, rideID string, aud notify.Audience) (string, bool, error) {
	return f.drain(rideID, aud)
}

func (f *fakeStore) CreateChair(_ context.Context, name, model, _ string) (models.Chair, error) {
	return models.Chair{ID: "c1", OwnerID: "o1", Name: name, Model: model, AccessToken: "ctok"}, nil
}

func (f *fakeStore) ChairByAccessToken(_ context.Context, token string) (models.Chair, error) {
	if f.chair != nil && f.chair.AccessToken == token {
		return *f.chair, nil
	}
	return models.Chair{}, storage.ErrNotFound
}

func (f *fakeStore) ChairByID(_ context.Context, id string) (models.Chair, error) {
	if f.chair != nil && f.chair.ID == id {
		return *f.chair, nil
	}
	return models.Chair{}, storage.ErrNotFound
}

func (f *fakeStore) SetChairActivity(_ context.Context, _ string, _ bool) error { return nil }

func (f *fakeStore) RecordCoordinate(_ context.Context, _ string, _ models.Coord) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeStore) FreeActiveChairs(_ context.Context) ([]models.Chair, error) { return nil, nil }

func (f *fakeStore) CreateOwner(_ context.Context, name string) (models.Owner, error) {
	return models.Owner{ID: "o1", Name: name, AccessToken: "otok", ChairRegisterToken: "reg"}, nil
}

func (f *fakeStore) OwnerByAccessToken(_ context.Context, token string) (models.Owner, error) {
	if f.owner != nil && f.owner.AccessToken == token {
		return *f.owner, nil
	}
	return models.Owner{}, storage.ErrNotFound
}

func (f *fakeStore) OwnerChairs(_ context.Context, _ string) ([]models.Chair, error) { return nil, nil }

type nopProvider struct{}

func (nopProvider) Settle(context.Context, payment.SettleRequest) error { return nil }

func newTestServer(fs *fakeStore) *Server {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(fs, geo.NewIndex(), nil, nopProvider{}, nil, nil, logger)
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestAppRegisterReturnsTokens(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rr := doJSON(t, srv, "POST", "/api/app/users", "", map[string]string{
		"username": "rider1", "firstname": "A", "lastname": "B", "date_of_birth": "1990-01-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	for _, k := range []string{"id", "access_token", "invitation_code"} {
		if body[k] == "" || body[k] == nil {
			t.Fatalf("missing %s in %v", k, body)
		}
	}
}

func TestAppRegisterRejectsMissingFields(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rr := doJSON(t, srv, "POST", "/api/app/users", "", map[string]string{"username": "rider1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateRideRequiresAuth(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rr := doJSON(t, srv, "POST", "/api/app/rides", "", map[string]any{})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateRideAcceptedWithFrozenFare(t *testing.T) {
	user := models.User{ID: "u1", AccessToken: "tok"}
	fs := &fakeStore{
		user: &user,
		createRide: func(userID string, pickup, dest models.Coord) (models.Ride, error) {
			return models.Ride{ID: "r1", UserID: userID, Pickup: pickup, Destination: dest,
				Fare: 1500, Status: lifecycle.StatusMatching}, nil
		},
	}
	srv := newTestServer(fs)
	rr := doJSON(t, srv, "POST", "/api/app/rides", "tok", map[string]any{
		"pickup_coordinate":      map[string]int{"latitude": 0, "longitude": 0},
		"destination_coordinate": map[string]int{"latitude": 10, "longitude": 0},
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["ride_id"] != "r1" || body["fare"] != float64(1500) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreateRideActiveRideMapsTo429(t *testing.T) {
	user := models.User{ID: "u1", AccessToken: "tok"}
	fs := &fakeStore{
		user: &user,
		createRide: func(string, models.Coord, models.Coord) (models.Ride, error) {
			return models.Ride{}, storage.ErrActiveRide
		},
	}
	srv := newTestServer(fs)
	rr := doJSON(t, srv, "POST", "/api/app/rides", "tok", map[string]any{
		"pickup_coordinate":      map[string]int{"latitude": 0, "longitude": 0},
		"destination_coordinate": map[string]int{"latitude": 1, "longitude": 1},
	})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestEvaluationRangeCheckedBeforeLookup(t *testing.T) {
	user := models.User{ID: "u1", AccessToken: "tok"}
	srv := newTestServer(&fakeStore{user: &user})
	for _, bad := range []int{0, 6, -1} {
		rr := doJSON(t, srv, "POST", "/api/app/rides/r1/evaluation", "tok", map[string]int{"evaluation": bad})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("evaluation %d: expected 400, got %d", bad, rr.Code)
		}
	}
}

func TestEvaluationOfForeignRideIsNotFound(t *testing.T) {
	user := models.User{ID: "u1", AccessToken: "tok"}
	fs := &fakeStore{
		user: &user,
		rideByID: func(id string) (models.Ride, error) {
			return models.Ride{ID: id, UserID: "someone-else", Status: lifecycle.StatusArrived}, nil
		},
	}
	srv := newTestServer(fs)
	rr := doJSON(t, srv, "POST", "/api/app/rides/r1/evaluation", "tok", map[string]int{"evaluation": 5})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAppNotificationNoRide(t *testing.T) {
	user := models.User{ID: "u1", AccessToken: "tok"}
	srv := newTestServer(&fakeStore{user: &user})
	rr := doJSON(t, srv, "GET", "/api/app/notification", "tok", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["data"] != nil {
		t.Fatalf("expected null data, got %v", body["data"])
	}
	if body["retry_after_ms"] != float64(800) {
		t.Fatalf("expected 800ms hint, got %v", body["retry_after_ms"])
	}
}

func TestAppNotificationDrainsOldestEvent(t *testing.T) {
	rideID := "r1"
	user := models.User{ID: "u1", AccessToken: "tok", CurrentRideID: &rideID}
	fs := &fakeStore{
		user: &user,
		drain: func(id string, aud notify.Audience) (string, bool, error) {
			if id != rideID || aud != notify.AudienceApp {
				t.Fatalf("unexpected drain args %s %s", id, aud)
			}
			return lifecycle.StatusMatching, true, nil
		},
		rideByID: func(id string) (models.Ride, error) {
			return models.Ride{ID: id, UserID: "u1", Fare: 1500, Status: lifecycle.StatusMatching}, nil
		},
	}
	srv := newTestServer(fs)
	rr := doJSON(t, srv, "GET", "/api/app/notification", "tok", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	if data["status"] != lifecycle.StatusMatching || data["ride_id"] != rideID {
		t.Fatalf("unexpected data %v", data)
	}
	if body["retry_after_ms"] != float64(500) {
		t.Fatalf("expected 500ms hint, got %v", body["retry_after_ms"])
	}
}

func TestChairNotificationUsesETAHint(t *testing.T) {
	rideID := "r1"
	chair := models.Chair{
		ID: "c1", AccessToken: "ctok", Speed: 2,
		Location:      &models.Coord{Latitude: 0, Longitude: 0},
		CurrentRideID: &rideID,
	}
	user := models.User{ID: "u1", Firstname: "A", Lastname: "B"}
	fs := &fakeStore{
		user:  &user,
		chair: &chair,
		drain: func(string, notify.Audience) (string, bool, error) {
			return lifecycle.StatusEnroute, true, nil
		},
		rideByID: func(id string) (models.Ride, error) {
			return models.Ride{
				ID: id, UserID: "u1",
				Pickup:      models.Coord{Latitude: 60, Longitude: 40},
				Destination: models.Coord{Latitude: 0, Longitude: 0},
				Status:      lifecycle.StatusEnroute,
			}, nil
		},
	}
	srv := newTestServer(fs)
	rr := doJSON(t, srv, "GET", "/api/chair/notification", "ctok", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	// distance 100 at speed 2 is a 50s ETA
	if body["retry_after_ms"] != float64(50000) {
		t.Fatalf("expected 50000ms hint, got %v", body["retry_after_ms"])
	}
}

func TestChairStatusRejectsDerivedStates(t *testing.T) {
	chair := models.Chair{ID: "c1", AccessToken: "ctok"}
	fs := &fakeStore{chair: &chair}
	srv := newTestServer(fs)
	for _, bad := range []string{lifecycle.StatusPickup, lifecycle.StatusArrived, lifecycle.StatusCompleted, "BOGUS"} {
		rr := doJSON(t, srv, "POST", "/api/chair/rides/r1/status", "ctok", map[string]string{"status": bad})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status %s: expected 400, got %d", bad, rr.Code)
		}
	}
	if len(fs.statusPosts) != 0 {
		t.Fatalf("store reached with invalid status: %v", fs.statusPosts)
	}
	rr := doJSON(t, srv, "POST", "/api/chair/rides/r1/status", "ctok", map[string]string{"status": lifecycle.StatusEnroute})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestOwnerRegisterReturnsBothTokens(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rr := doJSON(t, srv, "POST", "/api/owner/owners", "", map[string]string{"name": "fleet1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["access_token"] == nil || body["chair_register_token"] == nil {
		t.Fatalf("missing tokens in %v", body)
	}
}
