// Package push bridges external push notifications from NATS onto the
// in-process bus.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
)

// ErrEmptyPayload is returned by Decode for a notification naming neither a
// type nor a thread.
var ErrEmptyPayload = errors.New("push payload has no type or thread")

type payload struct {
	Type           string `json:"type"`
	Kind           string `json:"kind"`
	ThreadID       string `json:"threadId"`
	ThreadIDSnake  string `json:"thread_id"`
	ConversationID string `json:"conversationId"`
}

// Decode parses a push notification body. A body with a thread but no type
// announces a message.
func Decode(data []byte) (notify.Push, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return notify.Push{}, fmt.Errorf("decode push: %w", err)
	}
	push := notify.Push{
		Type:     strings.ToLower(strings.TrimSpace(firstNonEmpty(p.Type, p.Kind))),
		ThreadID: strings.TrimSpace(firstNonEmpty(p.ThreadID, p.ThreadIDSnake, p.ConversationID)),
	}
	if push.Type == "" {
		if push.ThreadID == "" {
			return notify.Push{}, ErrEmptyPayload
		}
		push.Type = notify.TypeMessage
	}
	return push, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Bridge subscribes to a NATS subject and republishes each notification as a
// "push.<type>" bus event.
type Bridge struct {
	url     string
	subject string
	bus     *bus.Bus
	logger  *zap.Logger

	nc  *nats.Conn
	sub *nats.Subscription
}

// NewBridge creates a bridge. An empty url disables it.
func NewBridge(url, subject string, b *bus.Bus, logger *zap.Logger) *Bridge {
	logger = logging.OrNop(logger)
	return &Bridge{url: strings.TrimSpace(url), subject: subject, bus: b, logger: logger}
}

// Enabled reports whether a NATS url is configured.
func (br *Bridge) Enabled() bool {
	return br.url != ""
}

// Start connects and subscribes. It is a no-op when the bridge is disabled.
func (br *Bridge) Start() error {
	if !br.Enabled() {
		br.logger.Info("push bridge disabled")
		return nil
	}
	nc, err := nats.Connect(br.url,
		nats.Name("chatsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				br.logger.Warn("push connection lost", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			br.logger.Info("push connection restored", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	sub, err := nc.Subscribe(br.subject, br.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", br.subject, err)
	}
	br.nc, br.sub = nc, sub
	br.logger.Info("push bridge started", zap.String("subject", br.subject))
	return nil
}

// Stop drains the subscription and closes the connection.
func (br *Bridge) Stop() error {
	if br.nc == nil {
		return nil
	}
	nc := br.nc
	br.nc, br.sub = nil, nil
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func (br *Bridge) handle(msg *nats.Msg) {
	p, err := Decode(msg.Data)
	if err != nil {
		br.logger.Warn("dropping push notification", zap.Error(err), zap.String("subject", msg.Subject))
		return
	}
	br.Publish(p)
}

// Publish puts a notification on the bus.
func (br *Bridge) Publish(p notify.Push) {
	br.bus.Publish(bus.Event{Kind: bus.PushKind(p.Type), ThreadID: p.ThreadID, Payload: p})
}
