package http

import (
	"net/http"

	applog "fintrack/internal/log"
	"fintrack/internal/transfer"
)

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.tracker.Prefs.Get()).Write(w)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	prefs, err := s.tracker.UpdatePreferences(r.Context(), req.Update())
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(prefs).Write(w)
}

// handleExport downloads the ledger and goal as an export document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc := s.tracker.Export()
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Data exported",
		applog.FieldComponent, applog.ComponentTransfer,
		applog.FieldCount, len(doc.Transactions))
	NewJSONResponse().
		Attachment(transfer.FileName(doc.ExportDate)).
		Body(doc).
		Write(w)
}

type importResponse struct {
	Imported int  `json:"imported"`
	Goal     bool `json:"goal"`
}

// handleImport replaces the ledger with an uploaded export document. The
// previous data is kept when the document is rejected.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, transfer.MaxDocumentSize+1)
	doc, err := transfer.Decode(r.Body)
	if err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	if err := s.tracker.Import(r.Context(), doc); err != nil {
		ErrorFromDomain(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(importResponse{Imported: len(doc.Transactions), Goal: doc.Goal != nil}).Write(w)
}
