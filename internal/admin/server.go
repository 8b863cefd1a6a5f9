// Query and control HTTP API for the running fleet
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"robosim/internal/broadcast"
	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/sim"
	"robosim/internal/telemetry"
	"robosim/internal/update"
)

// Server exposes the fleet over a JSON REST API plus the /ws broadcast
// endpoint.
type Server struct {
	Sim       *sim.Simulator
	Validator *command.Validator
	Updates   *update.Coordinator
	Broadcast *broadcast.Manager
	mux       *http.ServeMux
}

// NewServer wires all routes.
func NewServer(s *sim.Simulator, v *command.Validator, u *update.Coordinator, b *broadcast.Manager) *Server {
	srv := &Server{Sim: s, Validator: v, Updates: u, Broadcast: b, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /robots", s.handleRobots)
	s.mux.HandleFunc("POST /robots", s.handleAddRobot)
	s.mux.HandleFunc("GET /robots/{id}", s.handleRobot)
	s.mux.HandleFunc("DELETE /robots/{id}", s.handleRemoveRobot)
	s.mux.HandleFunc("GET /robots/{id}/path", s.handlePath)
	s.mux.HandleFunc("GET /robots/{id}/path/stats", s.handlePathStats)
	s.mux.HandleFunc("POST /robots/{id}/reset", s.handleReset)
	s.mux.HandleFunc("POST /robots/{id}/command", s.handleCommand)
	s.mux.HandleFunc("GET /robots/{id}/update", s.handleUpdateStatus)
	s.mux.HandleFunc("GET /robots/{id}/update/history", s.handleUpdateHistory)
	s.mux.HandleFunc("POST /robots/{id}/update", s.handleStartUpdate)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /telemetry", s.handleTelemetry)
	s.mux.HandleFunc("GET /fleet-health", s.handleHealth)
	if s.Broadcast != nil {
		s.mux.HandleFunc("GET /ws", s.Broadcast.HandleWS)
	}
}

// Handler returns the route table, for embedding in tests or servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on addr and blocks.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshots())
}

func (s *Server) handleRobot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Sim.Snapshot(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAddRobot(w http.ResponseWriter, r *http.Request) {
	var group config.RobotGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if group.Name == "" {
		group.Name = "robot"
	}
	id := s.Sim.AddRobot(group)
	writeJSON(w, http.StatusCreated, map[string]string{"robot_id": id})
}

func (s *Server) handleRemoveRobot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.Sim.RemoveRobot(id) {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	s.Validator.Forget(id)
	s.Updates.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	points, ok := s.Sim.Path(r.PathValue("id"), limit)
	if !ok {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handlePathStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.Sim.PathStats(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.Sim.Reset(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCommand accepts the same command envelope as the MQTT inbound
// topics, but reports rejections synchronously.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var msg telemetry.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if msg.Action != "" {
		// Normalize unknown actions the way the wire decoder does.
		raw, _ := json.Marshal(msg)
		msg, _ = telemetry.DecodeCommand(raw)
	}
	cmd, err := s.Validator.Validate(id, msg)
	if err != nil {
		writeError(w, statusForCommandError(err), err)
		return
	}
	if err := s.Sim.SubmitCommand(id, cmd); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func statusForCommandError(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownRobot):
		return http.StatusNotFound
	case errors.Is(err, command.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, command.ErrBlockedByEmergencyStop):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Updates.Status(r.PathValue("id")))
}

func (s *Server) handleUpdateHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.Updates.History(r.PathValue("id"))
	if hist == nil {
		hist = []update.Record{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleStartUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Sim.Snapshot(id); !ok {
		writeError(w, http.StatusNotFound, command.ErrUnknownRobot)
		return
	}
	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Version == "" {
		writeError(w, http.StatusBadRequest, errors.New("version required"))
		return
	}
	rec, err := s.Updates.Start(id, body.Version)
	if err != nil {
		if errors.Is(err, update.ErrUpdateAlreadyInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	writeJSON(w, http.StatusOK, s.Sim.Events().Tail(limit))
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.TelemetrySnapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Health())
}
