package members

import (
	"context"
	"fmt"
	"strings"

	beeperdesktopapi "github.com/beeper/desktop-api-go"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/mention"
)

// DesktopSource lists chat participants through a Beeper Desktop API
// instance. Chat IDs there can belong to any bridged network.
type DesktopSource struct {
	Client *beeperdesktopapi.Client
	ChatID string
}

var _ mention.MemberSource = (*DesktopSource)(nil)

func (ds *DesktopSource) FetchMembers(ctx context.Context) ([]mention.Member, error) {
	chat, err := ds.Client.Chats.Get(ctx, ds.ChatID, beeperdesktopapi.ChatGetParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to get desktop chat %s: %w", ds.ChatID, err)
	}
	output := make([]mention.Member, 0, len(chat.Participants.Items))
	seen := make(map[string]struct{}, len(chat.Participants.Items))
	for _, user := range chat.Participants.Items {
		userID := strings.TrimSpace(user.ID)
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		output = append(output, mention.Member{
			UserID:      id.UserID(userID),
			DisplayName: strings.TrimSpace(user.FullName),
			AvatarURL:   id.ContentURIString(user.ImgURL),
		})
	}
	return output, nil
}
