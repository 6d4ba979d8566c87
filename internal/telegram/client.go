// Package telegram adapts the MTProto user client (gotd/td) to the
// collaborator interfaces the scan engine depends on: dialog and topic
// listing, windowed history fetch, forward, copy, and plain sends.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// Client owns the MTProto connection lifecycle. The session must be
// pre-authorized (user account, not a bot); scanning arbitrary chat
// history is not available to bot tokens.
type Client struct {
	apiID       int
	apiHash     string
	sessionFile string
	log         *slog.Logger
}

// NewClient creates a Client using a file-backed session.
func NewClient(apiID int, apiHash, sessionFile string, log *slog.Logger) *Client {
	return &Client{apiID: apiID, apiHash: apiHash, sessionFile: sessionFile, log: log}
}

// Run connects, verifies authorization, and invokes fn with a live
// Session. The connection is held for the duration of fn.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	if dir := filepath.Dir(c.sessionFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session directory: %w", err)
		}
	}

	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.sessionFile},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return errors.New("telegram session is not authorized")
		}

		s := &Session{
			api:         client.API(),
			log:         c.log,
			peers:       make(map[int64]tg.InputPeerClass),
			channels:    make(map[int64]*tg.InputChannel),
			channelMeta: make(map[int64]*tg.Channel),
			titles:      make(map[int64]string),
			media:       make(map[mediaKey]tg.InputMediaClass),
		}
		return fn(ctx, s)
	})
}

type mediaKey struct {
	chatID int64
	msgID  int64
}

// Session exposes the chat operations over an established connection.
// It caches input peers (chat id to access hash) from the dialog list;
// all other methods resolve chats through that cache.
type Session struct {
	api *tg.Client
	log *slog.Logger

	peers       map[int64]tg.InputPeerClass
	channels    map[int64]*tg.InputChannel
	channelMeta map[int64]*tg.Channel
	titles      map[int64]string
	media       map[mediaKey]tg.InputMediaClass
}

const rpcMaxAttempts = 5

// withFloodWait runs op, honoring FLOOD_WAIT hints with a bounded
// number of attempts. Other errors abort immediately.
func (s *Session) withFloodWait(ctx context.Context, op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		wait, flood := tgerr.AsFloodWait(err)
		if !flood || attempt >= rpcMaxAttempts {
			return err
		}
		s.log.Warn("flood wait, backing off", "seconds", wait.Seconds(), "attempt", attempt)
		select {
		case <-time.After(wait + time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resolvePeer maps a marked chat ID onto an input peer, loading the
// dialog list on first use.
func (s *Session) resolvePeer(ctx context.Context, chatID int64) (tg.InputPeerClass, error) {
	if len(s.peers) == 0 {
		if _, err := s.Dialogs(ctx); err != nil {
			return nil, fmt.Errorf("load dialogs: %w", err)
		}
	}
	peer, ok := s.peers[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d not found among dialogs", chatID)
	}
	return peer, nil
}

// Title returns the cached display name for a chat, if known.
func (s *Session) Title(chatID int64) string {
	return s.titles[chatID]
}
