// Package transfer reads and writes the portable JSON document used for
// export, import and backups.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"fintrack/internal/core"
)

// ErrInvalidFormat means the input is not an export document.
var ErrInvalidFormat = errors.New("invalid file format")

// MaxDocumentSize bounds what Decode will read.
const MaxDocumentSize = 10 << 20

// Document is the export file. DefaultCurrency is informational: import
// never changes the current default currency.
type Document struct {
	Transactions    []core.Transaction `json:"transactions"`
	Goal            *core.Goal         `json:"goal,omitempty"`
	DefaultCurrency string             `json:"defaultCurrency,omitempty"`
	ExportDate      time.Time          `json:"exportDate"`
}

func NewDocument(txs []core.Transaction, goal *core.Goal, defaultCurrency string, now time.Time) Document {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return Document{
		Transactions:    txs,
		Goal:            goal,
		DefaultCurrency: defaultCurrency,
		ExportDate:      now.UTC(),
	}
}

// FileName is the deterministic download name for an export made at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("finance-tracker-%s.json", now.UTC().Format("2006-01-02"))
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}

type rawDocument struct {
	Transactions    json.RawMessage `json:"transactions"`
	Goal            json.RawMessage `json:"goal"`
	DefaultCurrency string          `json:"defaultCurrency"`
	ExportDate      string          `json:"exportDate"`
}

// Decode parses an export document. The transactions field must be a list.
// Records without an id get a fresh one; records without a currency keep it
// empty for the caller to default. A goal that is present but unusable is
// dropped rather than failing the whole import.
func Decode(r io.Reader) (Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("read document: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return Document{}, fmt.Errorf("%w: document too large", ErrInvalidFormat)
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	trimmed := bytes.TrimSpace(raw.Transactions)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Document{}, fmt.Errorf("%w: transactions must be a list", ErrInvalidFormat)
	}

	var txs []core.Transaction
	if err := json.Unmarshal(trimmed, &txs); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	for i := range txs {
		if strings.TrimSpace(txs[i].ID) == "" {
			txs[i].ID = core.NewTransactionID()
		}
		txs[i].Currency = strings.ToUpper(strings.TrimSpace(txs[i].Currency))
	}

	doc := Document{
		Transactions:    txs,
		DefaultCurrency: raw.DefaultCurrency,
	}
	if doc.Transactions == nil {
		doc.Transactions = []core.Transaction{}
	}
	if t, err := time.Parse(time.RFC3339, raw.ExportDate); err == nil {
		doc.ExportDate = t
	}

	if g := bytes.TrimSpace(raw.Goal); len(g) > 0 && !bytes.Equal(g, []byte("null")) {
		var goal core.Goal
		if err := json.Unmarshal(g, &goal); err == nil && goal.Validate() == nil {
			doc.Goal = &goal
		}
	}
	return doc, nil
}
