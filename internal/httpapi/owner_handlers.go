package httpapi

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleOwnerRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	owner, err := s.Store.CreateOwner(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":                   owner.ID,
		"access_token":         owner.AccessToken,
		"chair_register_token": owner.ChairRegisterToken,
	})
}

func (s *Server) handleOwnerChairs(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	chairs, err := s.Store.OwnerChairs(r.Context(), owner.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(chairs))
	for _, c := range chairs {
		item := map[string]any{
			"id":             c.ID,
			"name":           c.Name,
			"model":          c.Model,
			"active":         c.IsActive,
			"total_distance": c.TotalDistance,
			"registered_at":  c.CreatedAt.UnixMilli(),
		}
		if c.TotalDistanceUpdatedAt != nil {
			item["total_distance_updated_at"] = c.TotalDistanceUpdatedAt.UnixMilli()
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"chairs": items})
}
