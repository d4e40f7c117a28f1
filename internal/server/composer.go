package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/batuhan/mxcomposer/internal/mention"
)

const composerProtocolVersion = 1

type wsReadyMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	ChatID  string `json:"chatID"`
}

type wsTriggerMessage struct {
	Type    string `json:"type"`
	Trigger string `json:"trigger,omitempty"`
	Active  bool   `json:"active"`
}

type wsSuggestionsMessage struct {
	Type    string                   `json:"type"`
	Trigger string                   `json:"trigger,omitempty"`
	Items   []mention.SuggestionItem `json:"items"`
}

type wsErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestID,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// composer runs one mention session per connection. Client text updates are
// fed to a mention.Service and its trigger, suggestion and error streams are
// forwarded to the client in publication order.
func (s *Server) composer(w http.ResponseWriter, r *http.Request) error {
	chatID, err := readChatID(r)
	if err != nil {
		return err
	}
	source, err := s.memberSource(chatID)
	if err != nil {
		return err
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		return nil
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := zerolog.Ctx(ctx).With().Str("chat_id", chatID).Logger()

	outgoing := make(chan any, 32)
	send := func(msg any) {
		select {
		case outgoing <- msg:
		case <-ctx.Done():
		}
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outgoing:
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					log.Debug().Err(err).Msg("Failed to write composer message")
					cancel()
					return
				}
			}
		}
	}()

	svc := mention.NewService(source, mention.Options{
		Debounce:     s.cfg.MentionDebounce,
		FetchTimeout: s.cfg.MemberFetchTimeout,
		Log:          &log,
	})
	defer func() {
		cancel()
		svc.Close()
	}()

	send(wsReadyMessage{Type: "ready", Version: composerProtocolVersion, ChatID: chatID})
	svc.SubscribeTrigger(func(trigger mention.Trigger) {
		send(wsTriggerMessage{Type: "trigger", Trigger: trigger.Value, Active: trigger.Active})
	})
	svc.Subscribe(func(items []mention.SuggestionItem) {
		trigger, _ := svc.CurrentTextTrigger()
		send(wsSuggestionsMessage{Type: "suggestions", Trigger: trigger, Items: items})
	})
	svc.SubscribeErrors(func(fe *mention.FetchError) {
		send(wsErrorMessage{Type: "error", Code: "FETCH_FAILED", Message: fe.Error()})
	})

	for {
		var payload map[string]any
		if err = wsjson.Read(ctx, conn, &payload); err != nil {
			return nil
		}

		msgType, _ := payload["type"].(string)
		requestID, _ := payload["requestID"].(string)
		switch msgType {
		case "composer.text":
			text, ok := payload["text"].(string)
			if !ok {
				send(wsErrorMessage{
					Type:      "error",
					RequestID: requestID,
					Code:      "INVALID_PAYLOAD",
					Message:   "text must be a string",
				})
				continue
			}
			svc.ProcessTextMessage(text)
		case "composer.close":
			return nil
		default:
			send(wsErrorMessage{
				Type:      "error",
				RequestID: requestID,
				Code:      "INVALID_COMMAND",
				Message:   "Unsupported command type",
			})
		}
	}
}
