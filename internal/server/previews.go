package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/batuhan/mxcomposer/internal/compat"
	errs "github.com/batuhan/mxcomposer/internal/errors"
	"github.com/batuhan/mxcomposer/internal/linkpreview"
)

func (s *Server) linkPreviews(w http.ResponseWriter, r *http.Request) error {
	var input compat.LinkPreviewsInput
	if err := decodeJSON(r, &input); err != nil {
		return err
	}
	previews, err := s.resolvePreviews(r.Context(), input)
	if err != nil {
		return err
	}
	return writeJSON(w, compat.NewLinkPreviewsOutput(previews))
}

func (s *Server) resolvePreviews(ctx context.Context, input compat.LinkPreviewsInput) ([]*linkpreview.Preview, error) {
	if s.previews == nil {
		return nil, errs.Unavailable("Link previews are disabled")
	}
	input.URL = strings.TrimSpace(input.URL)
	switch {
	case input.URL != "":
		preview, err := s.previews.Get(ctx, input.URL)
		if errors.Is(err, linkpreview.ErrBlockedURL) || errors.Is(err, linkpreview.ErrNotHTML) {
			return nil, errs.Validation(map[string]any{"url": err.Error()})
		} else if err != nil {
			return nil, errs.Upstream(err)
		}
		return []*linkpreview.Preview{preview}, nil
	case strings.TrimSpace(input.Text) != "":
		return s.previews.Previews(ctx, input.Text), nil
	default:
		return nil, errs.Validation(map[string]any{"text": "text or url is required"})
	}
}
