package server

import (
	"net/http"
	"time"
)

type infoResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Timestamp   string `json:"timestamp"`
}

type testResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// handleRoot serves the client when it is bundled and service info otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.static != nil {
		s.static(w, r)
		return
	}

	writeJSON(w, http.StatusOK, infoResponse{
		Name:        serviceName,
		Version:     s.version,
		Environment: s.holder.Config().Server.Environment,
		Timestamp:   s.timestamp(),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, testResponse{
		Status:    "ok",
		Message:   "the server is running",
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if s.static != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		s.static(w, r)
		return
	}

	s.writeError(w, r, http.StatusNotFound, msgNotFound, nil)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed, nil)
}
