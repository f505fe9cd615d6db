package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

const (
	userKey  contextKey = "auth-user"
	chairKey contextKey = "auth-chair"
	ownerKey contextKey = "auth-owner"
)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func (s *Server) appAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "access token required")
			return
		}
		user, err := s.Store.UserByAccessToken(r.Context(), token)
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (s *Server) chairAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "access token required")
			return
		}
		chair, err := s.Store.ChairByAccessToken(r.Context(), token)
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chairKey, chair)))
	})
}

func (s *Server) ownerAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "access token required")
			return
		}
		owner, err := s.Store.OwnerByAccessToken(r.Context(), token)
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func userFrom(ctx context.Context) models.User   { u, _ := ctx.Value(userKey).(models.User); return u }
func chairFrom(ctx context.Context) models.Chair { c, _ := ctx.Value(chairKey).(models.Chair); return c }
func ownerFrom(ctx context.Context) models.Owner { o, _ := ctx.Value(ownerKey).(models.Owner); return o }
