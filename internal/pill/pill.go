package pill

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/mention"
)

// Pill is a mention span in composer text. Offset and Length are in bytes.
type Pill struct {
	UserID      id.UserID `json:"userID"`
	DisplayName string    `json:"displayName,omitempty"`
	Offset      int       `json:"offset"`
	Length      int       `json:"length"`
}

type Mention struct {
	UserID id.UserID `json:"userID"`
	Text   string    `json:"text"`
}

const (
	matrixToPrefix  = "https://matrix.to/#/"
	matrixURIPrefix = "matrix:u/"
)

func Label(item mention.SuggestionItem) string {
	if name := strings.TrimSpace(item.DisplayName); name != "" {
		return name
	}
	return string(item.UserID)
}

// Insert replaces the trigger at the end of text with the label of item,
// followed by a space.
func Insert(text string, item mention.SuggestionItem) (string, Pill, bool) {
	token, ok := mention.ParseTrigger(text)
	if !ok || item.UserID == "" {
		return text, Pill{}, false
	}
	start := len(text) - len(token)
	label := Label(item)
	return text[:start] + label + " ", Pill{
		UserID:      item.UserID,
		DisplayName: label,
		Offset:      start,
		Length:      len(label),
	}, true
}

// Render builds an m.text event with each pill linked to the user and listed
// in m.mentions. Invalid pills are skipped.
func Render(ctx context.Context, text string, pills []Pill) *event.MessageEventContent {
	log := zerolog.Ctx(ctx)
	content := &event.MessageEventContent{
		MsgType:  event.MsgText,
		Body:     text,
		Mentions: &event.Mentions{},
	}
	sorted := slices.Clone(pills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	prevEnd := 0
	rendered := 0
	var output strings.Builder
	for _, pill := range sorted {
		if pill.Offset < prevEnd {
			log.Warn().Int("offset", pill.Offset).Msg("Ignoring overlapping pill")
			continue
		} else if pill.Offset >= len(text) || pill.Length <= 0 {
			log.Warn().Int("offset", pill.Offset).Msg("Ignoring pill outside of text")
			continue
		}
		end := min(pill.Offset+pill.Length, len(text))
		if !utf8.RuneStart(text[pill.Offset]) || (end < len(text) && !utf8.RuneStart(text[end])) {
			log.Warn().Int("offset", pill.Offset).Msg("Ignoring pill that splits a character")
			continue
		}
		if _, _, err := pill.UserID.Parse(); err != nil {
			log.Warn().Err(err).Str("user_id", string(pill.UserID)).Msg("Ignoring pill with invalid user ID")
			continue
		}
		if !slices.Contains(content.Mentions.UserIDs, pill.UserID) {
			content.Mentions.Add(pill.UserID)
		}
		output.WriteString(event.TextToHTML(text[prevEnd:pill.Offset]))
		output.WriteString(`<a href="`)
		output.WriteString(pill.UserID.URI().MatrixToURL())
		output.WriteString(`">`)
		output.WriteString(event.TextToHTML(text[pill.Offset:end]))
		output.WriteString(`</a>`)
		prevEnd = end
		rendered++
	}
	if rendered == 0 {
		return content
	}
	output.WriteString(event.TextToHTML(text[prevEnd:]))
	content.Format = event.FormatHTML
	content.FormattedBody = output.String()
	return content
}

// Locate builds pills for mentions given as text spans. Each mention text is
// matched at its first occurrence after the previous match.
func Locate(text string, mentions []Mention) ([]Pill, error) {
	pills := make([]Pill, 0, len(mentions))
	searchFrom := 0
	for _, m := range mentions {
		if m.Text == "" {
			return nil, fmt.Errorf("mention text for %s is empty", m.UserID)
		}
		idx := strings.Index(text[searchFrom:], m.Text)
		if idx < 0 {
			return nil, fmt.Errorf("mention text %q not found after offset %d", m.Text, searchFrom)
		}
		offset := searchFrom + idx
		pills = append(pills, Pill{UserID: m.UserID, DisplayName: m.Text, Offset: offset, Length: len(m.Text)})
		searchFrom = offset + len(m.Text)
	}
	return pills, nil
}

// Extract returns the user mentions linked in formatted HTML, in document
// order.
func Extract(formattedBody string) ([]Mention, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(formattedBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse formatted body: %w", err)
	}
	mentions := make([]Mention, 0)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		userID, ok := ParseUserLink(href)
		if !ok {
			return
		}
		mentions = append(mentions, Mention{UserID: userID, Text: strings.TrimSpace(sel.Text())})
	})
	return mentions, nil
}

// ParseUserLink parses matrix.to and matrix: URIs that point to a user.
func ParseUserLink(href string) (id.UserID, bool) {
	var raw string
	switch {
	case strings.HasPrefix(href, matrixToPrefix):
		raw = strings.TrimPrefix(href, matrixToPrefix)
	case strings.HasPrefix(href, matrixURIPrefix):
		raw = "@" + strings.TrimPrefix(href, matrixURIPrefix)
	default:
		return "", false
	}
	raw, _, _ = strings.Cut(raw, "?")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	userID := id.UserID(unescaped)
	if _, _, err = userID.Parse(); err != nil {
		return "", false
	}
	return userID, true
}
