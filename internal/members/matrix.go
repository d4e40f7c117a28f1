package members

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.mau.fi/util/ptr"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/mention"
)

// MatrixSource lists the joined members of a Matrix room.
type MatrixSource struct {
	Client *mautrix.Client
	RoomID id.RoomID
}

var _ mention.MemberSource = (*MatrixSource)(nil)

type joinedMember struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

type respJoinedMembers struct {
	Joined map[id.UserID]joinedMember `json:"joined"`
}

func (ms *MatrixSource) FetchMembers(ctx context.Context) ([]mention.Member, error) {
	urlPath := ms.Client.BuildURLWithQuery(
		mautrix.ClientURLPath{"v3", "rooms", string(ms.RoomID), "joined_members"},
		nil,
	)
	var resp respJoinedMembers
	if _, err := ms.Client.MakeRequest(ctx, http.MethodGet, urlPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get joined members of %s: %w", ms.RoomID, err)
	}
	output := make([]mention.Member, 0, len(resp.Joined))
	for userID, member := range resp.Joined {
		if userID == "" {
			continue
		}
		output = append(output, mention.Member{
			UserID:      userID,
			DisplayName: strings.TrimSpace(ptr.Val(member.DisplayName)),
			AvatarURL:   id.ContentURIString(ptr.Val(member.AvatarURL)),
		})
	}
	SortMembers(output)
	return output, nil
}

// SortMembers orders members by display name (user ID when unset), then by
// user ID.
func SortMembers(list []mention.Member) {
	sortKey := func(member mention.Member) string {
		if member.DisplayName != "" {
			return member.DisplayName
		}
		return string(member.UserID)
	}
	sort.Slice(list, func(i, j int) bool {
		ki, kj := sortKey(list[i]), sortKey(list[j])
		if ki != kj {
			return ki < kj
		}
		return list[i].UserID < list[j].UserID
	})
}

// SearchDirectory looks up users outside the room through the homeserver
// user directory.
func SearchDirectory(ctx context.Context, cli *mautrix.Client, query string, limit int) ([]mention.Member, error) {
	resp, err := cli.SearchUserDirectory(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search user directory: %w", err)
	}
	output := make([]mention.Member, 0, len(resp.Results))
	for _, user := range resp.Results {
		if user == nil || user.UserID == "" {
			continue
		}
		output = append(output, mention.Member{
			UserID:      user.UserID,
			DisplayName: strings.TrimSpace(user.DisplayName),
			AvatarURL:   id.ContentURIString(user.AvatarURL.String()),
		})
	}
	return output, nil
}
