package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/batuhan/mxcomposer/internal/compat"
	"github.com/batuhan/mxcomposer/internal/cursor"
	errs "github.com/batuhan/mxcomposer/internal/errors"
	"github.com/batuhan/mxcomposer/internal/members"
	"github.com/batuhan/mxcomposer/internal/mention"
)

const (
	defaultMemberPageSize = 50
	maxMemberPageSize     = 500
)

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) error {
	chatID, err := readChatID(r)
	if err != nil {
		return err
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultMemberPageSize, maxMemberPageSize)
	if err != nil {
		return err
	}
	var memberCursor cursor.MemberCursor
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		if err = cursor.Decode(raw, &memberCursor); err != nil {
			return errs.Validation(map[string]any{"cursor": err.Error()})
		}
	}

	list, err := s.fetchMembers(r.Context(), chatID)
	if err != nil {
		return err
	}
	userIDs := make([]string, len(list))
	for i, member := range list {
		userIDs[i] = string(member.UserID)
	}
	start := memberCursor.Resume(userIDs)
	end := min(start+limit, len(list))

	out := compat.Participants{
		Items:   compat.UsersFromMembers(list[start:end], s.selfID()),
		HasMore: end < len(list),
		Total:   len(list),
	}
	if out.HasMore {
		out.NextCursor, err = cursor.Encode(cursor.MemberCursor{Offset: end, UserID: userIDs[end-1]})
		if err != nil {
			return errs.Internal(err)
		}
	}
	return writeJSON(w, out)
}

func (s *Server) suggestMentions(w http.ResponseWriter, r *http.Request) error {
	chatID, err := readChatID(r)
	if err != nil {
		return err
	}
	out, err := s.suggest(r.Context(), chatID, r.URL.Query().Get("text"))
	if err != nil {
		return err
	}
	return writeJSON(w, out)
}

func (s *Server) suggest(ctx context.Context, chatID, text string) (compat.MentionsOutput, error) {
	out := compat.MentionsOutput{ChatID: chatID, Items: []mention.SuggestionItem{}}
	trigger, ok := mention.ParseTrigger(text)
	if !ok {
		return out, nil
	}
	out.Trigger, out.Active = trigger, true
	list, err := s.fetchMembers(ctx, chatID)
	if err != nil {
		return out, err
	}
	out.Items = mention.Filter(mention.Project(list), mention.PartialName(trigger))
	return out, nil
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) error {
	if s.matrix == nil {
		return errs.Unavailable("Matrix is not configured")
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		return errs.Validation(map[string]any{"query": "query is required"})
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 10, 50)
	if err != nil {
		return err
	}
	ctx, cancel := s.memberFetchContext(r.Context())
	defer cancel()
	found, err := members.SearchDirectory(ctx, s.matrix, query, limit)
	if err != nil {
		return errs.Upstream(err)
	}
	return writeJSON(w, compat.UserSearchOutput{Items: compat.UsersFromMembers(found, s.selfID())})
}
