package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"droneMissionEngine/internal/allocator"
	"droneMissionEngine/internal/mission"
	"droneMissionEngine/internal/simulator"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func ok(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Envelope{Success: false, Message: message})
}

// deny matches auth.DenyFunc.
func deny(w http.ResponseWriter, _ *http.Request, code int, err error) {
	fail(w, code, err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mission.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, mission.ErrNotFound),
		errors.Is(err, simulator.ErrNotRunning),
		errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, allocator.ErrNoCapacity),
		errors.Is(err, mission.ErrDuplicateOrder),
		errors.Is(err, mission.ErrInvalidTransition),
		errors.Is(err, simulator.ErrAlreadyRunning),
		errors.Is(err, simulator.ErrNotFlyable),
		errors.Is(err, errConflict):
		return http.StatusConflict
	case errors.Is(err, simulator.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
	errConflict   = errors.New("conflict")
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		fail(w, code, "internal error")
		return
	}
	fail(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
