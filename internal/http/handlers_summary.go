package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/finance"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.tracker.Summary()).Write(w)
}

type goalResponse struct {
	Goal      *core.Goal         `json:"goal"`
	Status    finance.GoalStatus `json:"status"`
	DailyGoal string             `json:"dailyGoal,omitempty"`
}

func (s *Server) goalResponse() goalResponse {
	sum := s.tracker.Summary()
	return goalResponse{
		Goal:      s.tracker.Goals.Get(),
		Status:    sum.Goal,
		DailyGoal: sum.DailyGoal,
	}
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.goalResponse()).Write(w)
}

func (s *Server) handlePutGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	goal, err := req.Goal()
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	if err := s.tracker.SetGoal(r.Context(), goal); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(s.goalResponse()).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearGoal(r.Context()); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
