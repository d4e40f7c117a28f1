package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/compat"
	"github.com/batuhan/mxcomposer/internal/members"
	"github.com/batuhan/mxcomposer/internal/mention"
	"github.com/batuhan/mxcomposer/internal/pill"
)

// NewSuggestCmd creates the suggest command.
func NewSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <chat-id> <text>",
		Short: "Suggest members for the @mention at the end of text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, ok := mention.ParseTrigger(args[1])
			if !ok {
				return fmt.Errorf("text does not end in a mention trigger")
			}
			ctx, composer, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, composer)

			source, err := composer.Members().Source(args[0])
			if err != nil {
				return err
			}
			items, err := mention.Suggest(ctx, source, trigger)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, compat.MentionsOutput{ChatID: args[0], Trigger: trigger, Active: true, Items: items})
			}
			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No members match %s\n", trigger)
				return nil
			}
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), formatMember(string(item.UserID), item.DisplayName))
			}
			return nil
		},
	}
}

// NewMembersCmd creates the members command.
func NewMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <chat-id>",
		Short: "List the members of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, composer, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, composer)

			source, err := composer.Members().Source(args[0])
			if errors.Is(err, members.ErrNoSource) {
				return fmt.Errorf("%w: set MXCOMPOSER_HOMESERVER_URL or MXCOMPOSER_DESKTOP_API_TOKEN", err)
			} else if err != nil {
				return err
			}
			list, err := source.FetchMembers(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				users := compat.UsersFromMembers(list, string(composer.Config.UserID))
				return writeJSON(cmd, compat.Participants{Items: users, Total: len(users)})
			}
			for _, member := range list {
				fmt.Fprintln(cmd.OutOrStdout(), formatMember(string(member.UserID), member.DisplayName))
			}
			return nil
		},
	}
}

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <text>",
		Short: "Render text with mention pills as Matrix HTML",
		Long: `Render text with mention pills as Matrix HTML.

Each --mention links the first unused occurrence of its text:
  mxcomposer render "hi Alice" --mention @alice:example.org=Alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawMentions, _ := cmd.Flags().GetStringArray("mention")
			mentions, err := parseMentionFlags(rawMentions)
			if err != nil {
				return err
			}
			pills, err := pill.Locate(args[0], mentions)
			if err != nil {
				return err
			}
			content := pill.Render(cmd.Context(), args[0], pills)
			if jsonOutput(cmd) {
				return writeJSON(cmd, content)
			}
			if content.FormattedBody != "" {
				fmt.Fprintln(cmd.OutOrStdout(), content.FormattedBody)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), content.Body)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("mention", nil, "mention as @user:server=Text (repeatable)")
	return cmd
}

// NewPreviewCmd creates the preview command.
func NewPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <text>",
		Short: "Fetch link previews for the URLs in text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, composer, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, composer)

			previews := composer.Previews.Previews(ctx, args[0])
			if jsonOutput(cmd) {
				return writeJSON(cmd, compat.NewLinkPreviewsOutput(previews))
			}
			if len(previews) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No previews")
				return nil
			}
			for _, preview := range previews {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n", preview.MatchedURL, preview.Title)
				if preview.Description != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", preview.Description)
				}
			}
			return nil
		},
	}
}

func parseMentionFlags(raw []string) ([]pill.Mention, error) {
	mentions := make([]pill.Mention, 0, len(raw))
	for _, value := range raw {
		userID, text, ok := strings.Cut(value, "=")
		if !ok || text == "" {
			return nil, fmt.Errorf("invalid --mention %q: expected @user:server=Text", value)
		}
		parsed := id.UserID(strings.TrimSpace(userID))
		if _, _, err := parsed.Parse(); err != nil {
			return nil, fmt.Errorf("invalid --mention %q: %w", value, err)
		}
		mentions = append(mentions, pill.Mention{UserID: parsed, Text: text})
	}
	return mentions, nil
}

func formatMember(userID, displayName string) string {
	if displayName == "" {
		return userID
	}
	return fmt.Sprintf("%s (%s)", displayName, userID)
}
