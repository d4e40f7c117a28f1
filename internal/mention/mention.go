package mention

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.mau.fi/util/exstrings"
	"maunium.net/go/mautrix/id"
)

const triggerPrefix = '@'

type Member struct {
	UserID      id.UserID
	DisplayName string
	AvatarURL   id.ContentURIString
}

type SuggestionItem struct {
	UserID      id.UserID           `json:"userID"`
	DisplayName string              `json:"displayName,omitempty"`
	AvatarURL   id.ContentURIString `json:"avatarURL,omitempty"`
}

// MemberSource returns the full current member list of one room.
// The list does not need to be ordered or deduplicated.
type MemberSource interface {
	FetchMembers(ctx context.Context) ([]Member, error)
}

type MemberSourceFunc func(ctx context.Context) ([]Member, error)

func (fn MemberSourceFunc) FetchMembers(ctx context.Context) ([]Member, error) {
	return fn(ctx)
}

// LastToken returns the text after the last whitespace character.
// Text ending in whitespace has no last token.
func LastToken(text string) (string, bool) {
	idx := strings.LastIndexFunc(text, unicode.IsSpace)
	var token string
	if idx < 0 {
		token = text
	} else {
		_, size := utf8.DecodeRuneInString(text[idx:])
		token = text[idx+size:]
	}
	return token, token != ""
}

func IsTrigger(token string) bool {
	return exstrings.PrefixByteRunLength(token, triggerPrefix) == 1
}

// ParseTrigger extracts the in-progress mention token from composer text.
func ParseTrigger(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	token, ok := LastToken(text)
	if !ok || !IsTrigger(token) {
		return "", false
	}
	return token, true
}

func PartialName(trigger string) string {
	return strings.TrimPrefix(trigger, string(triggerPrefix))
}

func Project(members []Member) []SuggestionItem {
	items := make([]SuggestionItem, 0, len(members))
	for _, member := range members {
		items = append(items, SuggestionItem{
			UserID:      member.UserID,
			DisplayName: member.DisplayName,
			AvatarURL:   member.AvatarURL,
		})
	}
	return items
}

// Filter keeps items whose user ID or display name contains partial,
// ignoring case. The input order is preserved.
func Filter(items []SuggestionItem, partial string) []SuggestionItem {
	needle := strings.ToLower(partial)
	filtered := make([]SuggestionItem, 0, len(items))
	for _, item := range items {
		if matches(item, needle) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func matches(item SuggestionItem, needle string) bool {
	if strings.Contains(strings.ToLower(string(item.UserID)), needle) {
		return true
	}
	return item.DisplayName != "" && strings.Contains(strings.ToLower(item.DisplayName), needle)
}

// Suggest runs one fetch-and-filter pass without debouncing.
func Suggest(ctx context.Context, source MemberSource, trigger string) ([]SuggestionItem, error) {
	members, err := source.FetchMembers(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(Project(members), PartialName(trigger)), nil
}
