package compat

import (
	"maunium.net/go/mautrix/event"

	"github.com/batuhan/mxcomposer/internal/linkpreview"
	"github.com/batuhan/mxcomposer/internal/mention"
	"github.com/batuhan/mxcomposer/internal/pill"
)

type User struct {
	ID       string `json:"id"`
	FullName string `json:"fullName,omitempty"`
	ImgURL   string `json:"imgURL,omitempty"`
	IsSelf   *bool  `json:"isSelf,omitempty"`
}

type Participants struct {
	Items      []User `json:"items"`
	HasMore    bool   `json:"hasMore"`
	Total      int    `json:"total"`
	NextCursor string `json:"nextCursor,omitempty"`
}

type MentionsOutput struct {
	ChatID  string                   `json:"chatID"`
	Trigger string                   `json:"trigger,omitempty"`
	Active  bool                     `json:"active"`
	Items   []mention.SuggestionItem `json:"items"`
}

type InsertPillInput struct {
	Text string                 `json:"text"`
	Item mention.SuggestionItem `json:"item"`
}

type InsertPillOutput struct {
	Text     string     `json:"text"`
	Pill     *pill.Pill `json:"pill,omitempty"`
	Inserted bool       `json:"inserted"`
}

type RenderPillsInput struct {
	Text  string      `json:"text"`
	Pills []pill.Pill `json:"pills"`
}

type RenderPillsOutput struct {
	Content *event.MessageEventContent `json:"content"`
}

type ExtractPillsInput struct {
	FormattedBody string `json:"formattedBody"`
}

type ExtractPillsOutput struct {
	Mentions []pill.Mention `json:"mentions"`
}

type UserSearchOutput struct {
	Items []User `json:"items"`
}

type LinkPreviewsInput struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type LinkPreviewsOutput struct {
	Items  []*linkpreview.Preview     `json:"items"`
	Beeper []*event.BeeperLinkPreview `json:"com.beeper.linkpreviews"`
}

func UserFromMember(member mention.Member, self string) User {
	user := User{
		ID:       string(member.UserID),
		FullName: member.DisplayName,
		ImgURL:   string(member.AvatarURL),
	}
	if self != "" && user.ID == self {
		isSelf := true
		user.IsSelf = &isSelf
	}
	return user
}

func UsersFromMembers(members []mention.Member, self string) []User {
	users := make([]User, 0, len(members))
	for _, member := range members {
		users = append(users, UserFromMember(member, self))
	}
	return users
}

func NewLinkPreviewsOutput(previews []*linkpreview.Preview) LinkPreviewsOutput {
	out := LinkPreviewsOutput{
		Items:  previews,
		Beeper: make([]*event.BeeperLinkPreview, 0, len(previews)),
	}
	for _, preview := range previews {
		out.Beeper = append(out.Beeper, preview.ToBeeper())
	}
	return out
}
