package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tribalmingle/mobileapp-sub000/internal/api"
	"github.com/tribalmingle/mobileapp-sub000/internal/bus"
	"github.com/tribalmingle/mobileapp-sub000/internal/config"
	"github.com/tribalmingle/mobileapp-sub000/internal/flash"
	"github.com/tribalmingle/mobileapp-sub000/internal/identity"
	"github.com/tribalmingle/mobileapp-sub000/internal/notify"
	"github.com/tribalmingle/mobileapp-sub000/internal/outbox"
	"github.com/tribalmingle/mobileapp-sub000/internal/schedule"
	"github.com/tribalmingle/mobileapp-sub000/internal/task"
	"github.com/tribalmingle/mobileapp-sub000/internal/thread"
	"github.com/tribalmingle/mobileapp-sub000/internal/threadlist"
	"github.com/tribalmingle/mobileapp-sub000/internal/typing"
	"github.com/tribalmingle/mobileapp-sub000/internal/unread"
)

// Engine is the entry point for everything that needs more than one component.
type Engine struct {
	cfg    *config.Config
	client *api.Client
	ids    identity.Resolver
	unread *unread.Store
	list   *threadlist.Syncer
	hook   *notify.Hook
	bus    *bus.Bus
	flash  *flash.Model
	sched  schedule.Scheduler
	tasks  task.Runner
	logger *zap.Logger
}

// New assembles an engine from its components.
func New(cfg *config.Config, client *api.Client, ids identity.Resolver, store *unread.Store, list *threadlist.Syncer, hook *notify.Hook, b *bus.Bus, fl *flash.Model, sched schedule.Scheduler, tasks task.Runner, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		ids:    ids,
		unread: store,
		list:   list,
		hook:   hook,
		bus:    b,
		flash:  fl,
		sched:  sched,
		tasks:  tasks,
		logger: logger,
	}
}

func (e *Engine) Threads() *threadlist.Syncer { return e.list }
func (e *Engine) Unread() *unread.Store       { return e.unread }
func (e *Engine) Bus() *bus.Bus               { return e.bus }
func (e *Engine) Flash() *flash.Model         { return e.flash }

// Block blocks a user without opening a conversation.
func (e *Engine) Block(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("block: user id is required")
	}
	if err := e.client.Block(ctx, userID); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	e.logger.Info("user blocked", zap.String("user_id", userID))
	return nil
}

// Conversation is an open thread with its typing channel and sender.
type Conversation struct {
	*thread.Session
	Typing *typing.Channel
	Sender *outbox.Sender
}

// Open opens target, which is a thread id or, when no listed thread matches,
// the id of a user to chat with directly. The list is refreshed once if
// target is not in it yet.
func (e *Engine) Open(ctx context.Context, target string) (*Conversation, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("open: thread or user id is required")
	}
	summary, ok := e.list.Thread(target)
	if !ok {
		if err := e.list.Refresh(ctx); err != nil && !errors.Is(err, threadlist.ErrInFlight) {
			e.logger.Debug("refresh before open failed", zap.Error(err))
		}
		summary, ok = e.list.Thread(target)
	}

	opts := thread.Options{
		PageSize:           e.cfg.Sync.PageSize,
		PollInterval:       e.cfg.Sync.ThreadPollInterval.Duration,
		DirectPollInterval: e.cfg.Sync.DirectPollInterval.Duration,
	}
	if ok {
		opts.ThreadID = summary.ID
		opts.PeerID = summary.Peer().ID
		opts.Summary = &summary
	} else {
		opts.PeerID = target
	}

	s := thread.New(e.client, e.ids, e.unread, e.sched, e.hook, e.flash, e.logger, opts)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	c := &Conversation{Session: s}
	c.Typing = typing.New(e.client, e.tasks, e.sched, e.ids, e.logger, opts.ThreadID,
		e.cfg.Sync.TypingDebounce.Duration, e.cfg.Sync.TypingPollInterval.Duration)
	c.Typing.Start()
	s.OnClose(c.Typing.Leave)

	c.Sender = outbox.NewSender(e.client, s, e.ids, s.Recipient(), opts.ThreadID, e.bus, e.flash, e.logger).
		OnAccepted(c.Typing.ClearCompose)
	return c, nil
}
