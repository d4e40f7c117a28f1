package members

import (
	"errors"
	"strings"

	beeperdesktopapi "github.com/beeper/desktop-api-go"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/batuhan/mxcomposer/internal/mention"
)

var ErrNoSource = errors.New("no member source configured for chat")

// Resolver picks the member source for a chat. Matrix room IDs go to the
// homeserver when a Matrix client is available; everything else goes to
// the Desktop API.
type Resolver struct {
	Matrix  *mautrix.Client
	Desktop *beeperdesktopapi.Client
}

func (r *Resolver) Source(chatID string) (mention.MemberSource, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, ErrNoSource
	}
	if r.Matrix != nil && strings.HasPrefix(chatID, "!") {
		return &MatrixSource{Client: r.Matrix, RoomID: id.RoomID(chatID)}, nil
	}
	if r.Desktop != nil {
		return &DesktopSource{Client: r.Desktop, ChatID: chatID}, nil
	}
	return nil, ErrNoSource
}

func (r *Resolver) Backends() []string {
	var backends []string
	if r.Matrix != nil {
		backends = append(backends, "matrix")
	}
	if r.Desktop != nil {
		backends = append(backends, "desktop")
	}
	return backends
}
