// Package httpapi exposes the rider, chair, owner and internal API surfaces
// over HTTP. Handlers stay thin: auth resolution, request decoding and
// response shaping live here, every business rule lives in storage and the
// domain packages.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payment"
	"github.com/example/ride-dispatch/internal/storage"
)

// Store is the persistence surface the handlers consume, satisfied by
// *storage.Store.
type Store interface {
	CreateUser(ctx context.Context, in storage.NewUser) (models.User, error)
	UserByAccessToken(ctx context.Context, token string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	RegisterPaymentToken(ctx context.Context, userID, token string) error

	CreateRide(ctx context.Context, userID string, pickup, dest models.Coord) (models.Ride, error)
	RideByID(ctx context.Context, id string) (models.Ride, error)
	EstimateFare(ctx context.Context, userID string, pickup, dest models.Coord) (fare, discount int, err error)
	EvaluateRide(ctx context.Context, rideID string, evaluation int, settle storage.SettleFunc) (time.Time, error)
	CompletedRidesByUser(ctx context.Context, userID string) ([]storage.CompletedRide, error)
	ChairStatusUpdate(ctx context.Context, chairID, rideID, target string) error
	DrainNotification(ctx context.Context, rideID string, aud notify.Audience) (status string, drained bool, err error)

	CreateChair(ctx context.Context, name, model, registerToken string) (models.Chair, error)
	ChairByAccessToken(ctx context.Context, token string) (models.Chair, error)
	ChairByID(ctx context.Context, id string) (models.Chair, error)
	SetChairActivity(ctx context.Context, chairID string, active bool) error
	RecordCoordinate(ctx context.Context, chairID string, at models.Coord) (time.Time, error)
	FreeActiveChairs(ctx context.Context) ([]models.Chair, error)

	CreateOwner(ctx context.Context, name string) (models.Owner, error)
	OwnerByAccessToken(ctx context.Context, token string) (models.Owner, error)
	OwnerChairs(ctx context.Context, ownerID string) ([]models.Chair, error)
}

type Server struct {
	Store    Store
	Index    geo.ChairIndex
	Engine   *dispatch.Engine
	Payments payment.Provider
	Kafka    *ingest.KafkaProducer
	WSReg    *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(store Store, index geo.ChairIndex, engine *dispatch.Engine, payments payment.Provider, kafka *ingest.KafkaProducer, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{
		Store:    store,
		Index:    index,
		Engine:   engine,
		Payments: payments,
		Kafka:    kafka,
		WSReg:    wsreg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	app := s.mux.PathPrefix("/api/app").Subrouter()
	app.HandleFunc("/users", s.handleAppRegister).Methods("POST")
	app.Handle("/payment-methods", s.appAuth(s.handleRegisterPaymentMethod)).Methods("POST")
	app.Handle("/rides", s.appAuth(s.handleRideHistory)).Methods("GET")
	app.Handle("/rides", s.appAuth(s.handleCreateRide)).Methods("POST")
	app.Handle("/rides/estimated-fare", s.appAuth(s.handleEstimateFare)).Methods("POST")
	app.Handle("/rides/{ride_id}/evaluation", s.appAuth(s.handleEvaluateRide)).Methods("POST")
	app.Handle("/notification", s.appAuth(s.handleAppNotification)).Methods("GET")
	app.Handle("/nearby-chairs", s.appAuth(s.handleNearbyChairs)).Methods("GET")

	chair := s.mux.PathPrefix("/api/chair").Subrouter()
	chair.HandleFunc("/chairs", s.handleChairRegister).Methods("POST")
	chair.Handle("/activity", s.chairAuth(s.handleChairActivity)).Methods("POST")
	chair.Handle("/coordinate", s.chairAuth(s.handleChairCoordinate)).Methods("POST")
	chair.Handle("/notification", s.chairAuth(s.handleChairNotification)).Methods("GET")
	chair.Handle("/rides/{ride_id}/status", s.chairAuth(s.handleChairRideStatus)).Methods("POST")

	owner := s.mux.PathPrefix("/api/owner").Subrouter()
	owner.HandleFunc("/owners", s.handleOwnerRegister).Methods("POST")
	owner.Handle("/chairs", s.ownerAuth(s.handleOwnerChairs)).Methods("GET")

	s.mux.Handle("/api/internal/matching", http.HandlerFunc(s.handleInternalMatching)).Methods("GET")
	s.mux.Handle("/ws/{chair_id}", s.chairAuth(s.handleChairWS))

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// settle adapts the configured payment provider to the store's settlement
// hook.
func (s *Server) settle(ctx context.Context, gatewayURL, token string, amount int, history payment.HistoryProvider) error {
	return s.Payments.Settle(ctx, payment.SettleRequest{
		GatewayURL: gatewayURL,
		Token:      token,
		Amount:     amount,
		History:    history,
	})
}

func coordOf(c models.Coord) map[string]int {
	return map[string]int{"latitude": c.Latitude, "longitude": c.Longitude}
}
