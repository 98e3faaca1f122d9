package http

import (
	"net/http"

	"fintrack/internal/services"
)

type transactionsResponse struct {
	Transactions    []services.Row `json:"transactions"`
	Count           int            `json:"count"`
	DefaultCurrency string         `json:"defaultCurrency"`
	Filter          string         `json:"filter,omitempty"`
}

// handleListTransactions lists newest first. ?currency= overrides the saved
// filter; "all" shows every currency.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := s.tracker.Prefs.Get().FilterCurrency
	if q := r.URL.Query(); q.Has("currency") {
		switch v := q.Get("currency"); v {
		case "", "all", "ALL":
			filter = ""
		default:
			code, err := ParseCurrencyParam(r, "currency", "")
			if err != nil {
				ErrorFromDomain(r, err).Write(w)
				return
			}
			filter = code
		}
	}

	rows := s.tracker.ListTransactions(filter)
	NewJSONResponse().Body(transactionsResponse{
		Transactions:    rows,
		Count:           len(rows),
		DefaultCurrency: s.tracker.DefaultCurrency(),
		Filter:          filter,
	}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.tracker.Transactions.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("transaction not found").Write(w)
		return
	}
	NewJSONResponse().Body(tx).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	in, err := req.Input()
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	tx, err := s.tracker.AddTransaction(r.Context(), in)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		Body(tx).
		Write(w)
}

// handleUpdateTransaction replaces the transaction in place. It never
// creates one: an unknown id is a 404.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	in, err := req.Input()
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}

	tx, err := s.tracker.UpdateTransaction(r.Context(), r.PathValue("id"), in)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.RemoveTransaction(r.Context(), r.PathValue("id")); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearTransactions(r.Context()); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
