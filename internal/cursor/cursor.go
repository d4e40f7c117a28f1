package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MemberCursor points after the last member of a page. The user ID is kept
// so a page boundary survives members joining or leaving in between.
type MemberCursor struct {
	Offset int    `json:"offset"`
	UserID string `json:"user_id,omitempty"`
}

func Encode(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func Decode(raw string, out any) error {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("invalid cursor: %w", err)
	}
	if err = json.Unmarshal(decoded, out); err != nil {
		return fmt.Errorf("invalid cursor payload: %w", err)
	}
	return nil
}

// Resume returns the index to continue from in userIDs.
func (c MemberCursor) Resume(userIDs []string) int {
	if c.UserID != "" {
		for i, userID := range userIDs {
			if userID == c.UserID {
				return i + 1
			}
		}
	}
	if c.Offset < 0 {
		return 0
	}
	return min(c.Offset, len(userIDs))
}
