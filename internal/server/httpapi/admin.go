package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/go-chi/chi/v5"
)

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(r.Context(), "encode response", "error", err)
	}
}

func (s *Server) adminError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrorNotFound) {
		writeText(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}
	s.log.Error(r.Context(), "admin operation failed", "path", r.URL.Path, "error", err)
	writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// handleListUsers returns one page of usernames. Pass the returned "next"
// as ?next= to fetch the following page; it is empty on the last one.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	names, next, err := s.admin.ListUsersPage(r.Context(), r.URL.Query().Get("next"))
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	s.writeJSON(w, r, map[string]any{"users": orEmpty(names), "count": len(names), "next": next})
}

func (s *Server) handleDescribeUser(w http.ResponseWriter, r *http.Request) {
	view, err := s.admin.DescribeUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	s.writeJSON(w, r, view)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := s.admin.DeleteUser(r.Context(), username); err != nil {
		s.adminError(w, r, err)
		return
	}
	s.log.Info(r.Context(), "admin deleted user", "username", username, "by", r.Context().Value(adminSubKey))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	uids, err := s.admin.ListDevices(r.Context())
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	s.writeJSON(w, r, map[string]any{"devices": orEmpty(uids), "count": len(uids)})
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := s.admin.DeleteDevice(r.Context(), uid); err != nil {
		s.adminError(w, r, err)
		return
	}
	s.log.Info(r.Context(), "admin deleted device", "uid", uid, "by", r.Context().Value(adminSubKey))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.admin.Stats(r.Context())
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	s.writeJSON(w, r, st)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
