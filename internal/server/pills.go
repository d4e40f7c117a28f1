package server

import (
	"net/http"

	"github.com/batuhan/mxcomposer/internal/compat"
	errs "github.com/batuhan/mxcomposer/internal/errors"
	"github.com/batuhan/mxcomposer/internal/pill"
)

func (s *Server) insertPill(w http.ResponseWriter, r *http.Request) error {
	var input compat.InsertPillInput
	if err := decodeJSON(r, &input); err != nil {
		return err
	}
	if input.Item.UserID == "" {
		return errs.Validation(map[string]any{"item.userID": "userID is required"})
	}
	text, inserted, ok := pill.Insert(input.Text, input.Item)
	out := compat.InsertPillOutput{Text: text, Inserted: ok}
	if ok {
		out.Pill = &inserted
	}
	return writeJSON(w, out)
}

func (s *Server) renderPills(w http.ResponseWriter, r *http.Request) error {
	var input compat.RenderPillsInput
	if err := decodeJSON(r, &input); err != nil {
		return err
	}
	return writeJSON(w, compat.RenderPillsOutput{Content: pill.Render(r.Context(), input.Text, input.Pills)})
}

func (s *Server) extractPills(w http.ResponseWriter, r *http.Request) error {
	var input compat.ExtractPillsInput
	if err := decodeJSON(r, &input); err != nil {
		return err
	}
	mentions, err := pill.Extract(input.FormattedBody)
	if err != nil {
		return errs.Validation(map[string]any{"formattedBody": err.Error()})
	}
	return writeJSON(w, compat.ExtractPillsOutput{Mentions: mentions})
}
