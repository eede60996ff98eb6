package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/server/tvm"
)

// Operation labels used for the outcome counter.
const (
	opGetToken     = "gettoken"
	opLogin        = "login"
	opRegisterUser = "registeruser"
)

// HTTPStatus maps a vending status to its HTTP code.
func HTTPStatus(s tvm.Status) int {
	switch s {
	case tvm.StatusOK:
		return http.StatusOK
	case tvm.StatusBadRequest:
		return http.StatusBadRequest
	case tvm.StatusRequestTimeout:
		return http.StatusRequestTimeout
	case tvm.StatusUnauthorized:
		return http.StatusUnauthorized
	case tvm.StatusNotAcceptable:
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}

// params returns the trimmed values of names, or false when one is
// missing or blank.
func params(r *http.Request, names ...string) ([]string, bool) {
	out := make([]string, len(names))
	for i, n := range names {
		v := strings.TrimSpace(r.FormValue(n))
		if v == "" {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// endpointHost is the lowercased request host without port.
func endpointHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Expires", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// respond writes body on success and the status text otherwise.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op, body string, err error) {
	status := tvm.ClassifyFailure(err)
	s.metrics.ObserveOperation(op, status.String())

	code := HTTPStatus(status)
	if status != tvm.StatusOK {
		if status == tvm.StatusInternalError {
			s.log.Error(r.Context(), "operation failed", "operation", op, "error", err)
		}
		if body == "" {
			body = http.StatusText(code)
		}
	}
	writeText(w, code, body)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	p, ok := params(r, common.ParamUID, common.ParamSignature, common.ParamTimestamp)
	if !ok {
		s.respond(w, r, opGetToken, "", common.ErrorValidation)
		return
	}
	body, err := s.vendor.RequestDeviceToken(r.Context(), p[0], p[1], p[2])
	s.respond(w, r, opGetToken, body, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := params(r, common.ParamUsername, common.ParamUID, common.ParamSignature, common.ParamTimestamp)
	if !ok {
		s.respond(w, r, opLogin, "", common.ErrorValidation)
		return
	}
	body, err := s.vendor.Login(r.Context(), p[0], p[1], p[2], p[3])
	s.respond(w, r, opLogin, body, err)
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	p, ok := params(r, common.ParamUsername, common.ParamPassword)
	if !ok {
		s.respond(w, r, opRegisterUser, tvm.HintError, common.ErrorValidation)
		return
	}
	hint, err := s.vendor.RegisterUser(r.Context(), p[0], p[1], endpointHost(r))
	s.respond(w, r, opRegisterUser, hint, err)
}
