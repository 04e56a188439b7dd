// Package outbox sends messages optimistically: the message shows in the
// thread at once and is then confirmed or rolled back.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/logging"
	"github.com/tribalmingle/mobileapp-sub000/internal/model"
	"github.com/tribalmingle/mobileapp-sub000/internal/normalize"
)

// ErrEmptyMessage is returned for blank input. Nothing is sent.
var ErrEmptyMessage = errors.New("message is empty")

// Transport delivers a message to the server.
type Transport interface {
	SendMessage(ctx context.Context, receiverID, text string) (any, error)
}

// Timeline is the message list pending entries are shown in.
type Timeline interface {
	InsertPending(msg model.Message)
	ConfirmPending(localID string, confirmed model.Message)
	RemovePending(localID string)
}

// Sender sends messages into one conversation.
type Sender struct {
	transport Transport
	timeline  Timeline
	ids       identity.Resolver
	recipient string
	threadID  string
	bus       *bus.Bus
	flash     *flash.Model
	logger    *zap.Logger
	now       func() time.Time
	clear     func()
}

// NewSender creates a sender addressing recipient. threadID only labels bus
// events and may be empty. bus and flash may be nil.
func NewSender(transport Transport, timeline Timeline, ids identity.Resolver, recipient, threadID string, b *bus.Bus, fl *flash.Model, logger *zap.Logger) *Sender {
	logger = logging.OrNop(logger)
	return &Sender{
		transport: transport,
		timeline:  timeline,
		ids:       ids,
		recipient: recipient,
		threadID:  threadID,
		bus:       b,
		flash:     fl,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for pending timestamps.
func (s *Sender) WithClock(now func() time.Time) *Sender {
	s.now = now
	return s
}

// OnAccepted sets the callback run once a message is queued, typically to
// clear the compose input.
func (s *Sender) OnAccepted(clear func()) *Sender {
	s.clear = clear
	return s
}

// NewLocalID returns an id for an optimistic message.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", model.LocalIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// Send shows content as a pending message, sends it and swaps in the server
// copy. On failure the pending message is removed and the error returned.
// Concurrent sends are independent.
func (s *Sender) Send(ctx context.Context, content string) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	now := s.now()
	pending := model.PendingSend{
		LocalID:   NewLocalID(now),
		Target:    s.recipient,
		Content:   content,
		CreatedAt: now,
	}.Message(s.ids.Self())

	// Optimistic insert: show the message before the server answers.
	s.timeline.InsertPending(pending)
	if s.clear != nil {
		s.clear()
	}

	raw, err := s.transport.SendMessage(ctx, s.recipient, content)
	if err != nil {
		s.timeline.RemovePending(pending.ID)
		s.logger.Error("failed to send message", zap.Error(err), zap.String("local_id", pending.ID))
		err = fmt.Errorf("send message: %w", err)
		if s.flash != nil {
			s.flash.Err(err)
		}
		s.publish(bus.KindMessageFailed, map[string]string{
			"local_id": pending.ID,
			"error":    err.Error(),
		})
		return model.Message{}, err
	}

	confirmed := pending
	confirmed.Pending = false
	server, ok := normalize.SentMessage(raw)
	if !ok {
		// Accepted without an id: the next poll brings the server copy.
		s.timeline.RemovePending(pending.ID)
		s.logger.Warn("send response carried no message id", zap.String("local_id", pending.ID))
		confirmed.ID = ""
		return confirmed, nil
	}
	confirmed.ID = server.ID
	if server.Status != "" {
		confirmed.Status = server.Status
	}
	s.timeline.ConfirmPending(pending.ID, confirmed)

	s.logger.Info("message sent", zap.String("local_id", pending.ID), zap.String("message_id", confirmed.ID))
	s.publish(bus.KindMessageAck, map[string]string{
		"local_id":   pending.ID,
		"message_id": confirmed.ID,
	})
	return confirmed, nil
}

func (s *Sender) publish(kind string, payload map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, ThreadID: s.threadID, Payload: payload})
}
