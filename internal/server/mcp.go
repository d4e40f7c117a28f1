package server

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/compat"
	"github.com/batuhan/mxcomposer/internal/mention"
	"github.com/batuhan/mxcomposer/internal/pill"
)

type suggestMentionsInput struct {
	ChatID string `json:"chatID" jsonschema:"the chat or Matrix room ID"`
	Text   string `json:"text" jsonschema:"composer text ending in a partial mention such as 'hey @ali'"`
}

type mcpSuggestion struct {
	UserID      string `json:"userID"`
	DisplayName string `json:"displayName,omitempty"`
}

type suggestMentionsOutput struct {
	Trigger string          `json:"trigger,omitempty"`
	Items   []mcpSuggestion `json:"items"`
}

type listMembersInput struct {
	ChatID string `json:"chatID" jsonschema:"the chat or Matrix room ID"`
	Query  string `json:"query,omitempty" jsonschema:"optional case-insensitive filter on user ID or display name"`
}

type listMembersOutput struct {
	Items []mcpSuggestion `json:"items"`
	Total int             `json:"total"`
}

type mcpMention struct {
	UserID string `json:"userID" jsonschema:"Matrix user ID such as @alice:example.org"`
	Text   string `json:"text" jsonschema:"exact text in the message that should link to the user"`
}

type renderMentionsInput struct {
	Text     string       `json:"text" jsonschema:"plain text message body"`
	Mentions []mcpMention `json:"mentions" jsonschema:"users to link; each text is matched at its first unused occurrence"`
}

type renderMentionsOutput struct {
	Body          string   `json:"body"`
	Format        string   `json:"format,omitempty"`
	FormattedBody string   `json:"formattedBody,omitempty"`
	UserIDs       []string `json:"userIDs"`
}

type linkPreviewsInput struct {
	Text string `json:"text" jsonschema:"text containing http or https URLs"`
}

type mcpPreview struct {
	MatchedURL   string `json:"matchedURL"`
	CanonicalURL string `json:"canonicalURL,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	SiteName     string `json:"siteName,omitempty"`
	ImageURL     string `json:"imageURL,omitempty"`
}

type linkPreviewsOutput struct {
	Items []mcpPreview `json:"items"`
}

func (s *Server) newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mxcomposer",
		Version: appVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_mentions",
		Description: "Suggest chat members for the partial @mention at the end of the composer text.",
	}, s.toolSuggestMentions)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_members",
		Description: "List the members of a chat, optionally filtered by name or user ID.",
	}, s.toolListMembers)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "render_mentions",
		Description: "Render a message with Matrix mention pills and m.mentions.",
	}, s.toolRenderMentions)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "link_previews",
		Description: "Fetch link previews for the URLs in a message.",
	}, s.toolLinkPreviews)
	return server
}

func toMCPSuggestions(items []mention.SuggestionItem) []mcpSuggestion {
	out := make([]mcpSuggestion, 0, len(items))
	for _, item := range items {
		out = append(out, mcpSuggestion{UserID: string(item.UserID), DisplayName: item.DisplayName})
	}
	return out
}

func (s *Server) toolSuggestMentions(ctx context.Context, _ *mcp.CallToolRequest, input suggestMentionsInput) (*mcp.CallToolResult, suggestMentionsOutput, error) {
	res, err := s.suggest(ctx, strings.TrimSpace(input.ChatID), input.Text)
	if err != nil {
		return nil, suggestMentionsOutput{}, err
	}
	return nil, suggestMentionsOutput{Trigger: res.Trigger, Items: toMCPSuggestions(res.Items)}, nil
}

func (s *Server) toolListMembers(ctx context.Context, _ *mcp.CallToolRequest, input listMembersInput) (*mcp.CallToolResult, listMembersOutput, error) {
	list, err := s.fetchMembers(ctx, strings.TrimSpace(input.ChatID))
	if err != nil {
		return nil, listMembersOutput{}, err
	}
	items := mention.Project(list)
	if query := strings.TrimSpace(input.Query); query != "" {
		items = mention.Filter(items, query)
	}
	return nil, listMembersOutput{Items: toMCPSuggestions(items), Total: len(list)}, nil
}

func (s *Server) toolRenderMentions(ctx context.Context, _ *mcp.CallToolRequest, input renderMentionsInput) (*mcp.CallToolResult, renderMentionsOutput, error) {
	mentions := make([]pill.Mention, 0, len(input.Mentions))
	for _, m := range input.Mentions {
		mentions = append(mentions, pill.Mention{UserID: id.UserID(m.UserID), Text: m.Text})
	}
	pills, err := pill.Locate(input.Text, mentions)
	if err != nil {
		return nil, renderMentionsOutput{}, err
	}
	content := pill.Render(ctx, input.Text, pills)
	out := renderMentionsOutput{
		Body:          content.Body,
		Format:        string(content.Format),
		FormattedBody: content.FormattedBody,
		UserIDs:       make([]string, 0, len(content.Mentions.UserIDs)),
	}
	for _, userID := range content.Mentions.UserIDs {
		out.UserIDs = append(out.UserIDs, string(userID))
	}
	return nil, out, nil
}

func (s *Server) toolLinkPreviews(ctx context.Context, _ *mcp.CallToolRequest, input linkPreviewsInput) (*mcp.CallToolResult, linkPreviewsOutput, error) {
	previews, err := s.resolvePreviews(ctx, compat.LinkPreviewsInput{Text: input.Text})
	if err != nil {
		return nil, linkPreviewsOutput{}, err
	}
	out := linkPreviewsOutput{Items: make([]mcpPreview, 0, len(previews))}
	for _, preview := range previews {
		out.Items = append(out.Items, mcpPreview{
			MatchedURL:   preview.MatchedURL,
			CanonicalURL: preview.CanonicalURL,
			Title:        preview.Title,
			Description:  preview.Description,
			SiteName:     preview.SiteName,
			ImageURL:     preview.ImageURL,
		})
	}
	return nil, out, nil
}
