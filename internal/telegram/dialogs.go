package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"
)

// Chat IDs follow the marked convention used by most Telegram tooling:
// positive for users, negated for basic groups, and -100-prefixed for
// channels and supergroups, so config values match what other clients
// display.
const channelMarkOffset = int64(1000000000000)

func markedUserID(id int64) int64    { return id }
func markedChatID(id int64) int64    { return -id }
func markedChannelID(id int64) int64 { return -channelMarkOffset - id }

// Dialog describes one entry of the account's dialog list.
type Dialog struct {
	ChatID int64
	Type   string
	Title  string
	Forum  bool
}

// Topic describes one forum topic of a supergroup.
type Topic struct {
	ID    int64
	Title string
}

const dialogPageSize = 100

// Dialogs lists the account's dialogs and fills the peer cache as a
// side effect. The list is fetched page by page until exhausted.
func (s *Session) Dialogs(ctx context.Context) ([]Dialog, error) {
	var out []Dialog

	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogPageSize,
	}

	for {
		var resp tg.MessagesDialogsClass
		err := s.withFloodWait(ctx, func() error {
			var rpcErr error
			resp, rpcErr = s.api.MessagesGetDialogs(ctx, req)
			return rpcErr
		})
		if err != nil {
			return nil, fmt.Errorf("get dialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			lastPage bool
		)
		switch d := resp.(type) {
		case *tg.MessagesDialogs:
			dialogs, messages, lastPage = d.Dialogs, d.Messages, true
			s.register(d.Chats, d.Users)
		case *tg.MessagesDialogsSlice:
			dialogs, messages = d.Dialogs, d.Messages
			s.register(d.Chats, d.Users)
		default:
			return out, nil
		}

		for _, dc := range dialogs {
			d, ok := dc.(*tg.Dialog)
			if !ok {
				continue
			}
			if entry, ok := s.dialogEntry(d.Peer); ok {
				out = append(out, entry)
			}
		}

		if lastPage || len(dialogs) < dialogPageSize {
			return out, nil
		}

		last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
		if !ok {
			return out, nil
		}
		offsetDate := topMessageDate(messages, last.TopMessage)
		if offsetDate == 0 {
			return out, nil
		}
		peer, ok := s.peers[markedPeerID(last.Peer)]
		if !ok {
			return out, nil
		}
		req.OffsetDate = offsetDate
		req.OffsetID = last.TopMessage
		req.OffsetPeer = peer
	}
}

// Topics lists the forum topics of a supergroup. Chats that are not
// forums yield an empty list.
func (s *Session) Topics(ctx context.Context, chatID int64) ([]Topic, error) {
	if _, err := s.resolvePeer(ctx, chatID); err != nil {
		return nil, err
	}
	channel, ok := s.channels[chatID]
	if !ok {
		return nil, nil
	}

	var resp *tg.MessagesForumTopics
	err := s.withFloodWait(ctx, func() error {
		var rpcErr error
		resp, rpcErr = s.api.ChannelsGetForumTopics(ctx, &tg.ChannelsGetForumTopicsRequest{
			Channel: channel,
			Limit:   100,
		})
		return rpcErr
	})
	if err != nil {
		return nil, fmt.Errorf("get forum topics for %d: %w", chatID, err)
	}

	var topics []Topic
	for _, tc := range resp.Topics {
		if t, ok := tc.(*tg.ForumTopic); ok {
			topics = append(topics, Topic{ID: int64(t.ID), Title: t.Title})
		}
	}
	return topics, nil
}

// register fills the peer, channel, and title caches from an RPC response.
func (s *Session) register(chats []tg.ChatClass, users []tg.UserClass) {
	for _, uc := range users {
		u, ok := uc.(*tg.User)
		if !ok {
			continue
		}
		hash, _ := u.GetAccessHash()
		id := markedUserID(u.ID)
		s.peers[id] = &tg.InputPeerUser{UserID: u.ID, AccessHash: hash}
		s.titles[id] = userTitle(u)
	}
	for _, cc := range chats {
		switch c := cc.(type) {
		case *tg.Chat:
			id := markedChatID(c.ID)
			s.peers[id] = &tg.InputPeerChat{ChatID: c.ID}
			s.titles[id] = c.Title
		case *tg.Channel:
			hash, _ := c.GetAccessHash()
			id := markedChannelID(c.ID)
			s.peers[id] = &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: hash}
			s.channels[id] = &tg.InputChannel{ChannelID: c.ID, AccessHash: hash}
			s.channelMeta[c.ID] = c
			s.titles[id] = c.Title
		}
	}
}

func (s *Session) dialogEntry(peer tg.PeerClass) (Dialog, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		id := markedUserID(p.UserID)
		return Dialog{ChatID: id, Type: "private", Title: s.titles[id]}, true
	case *tg.PeerChat:
		id := markedChatID(p.ChatID)
		return Dialog{ChatID: id, Type: "group", Title: s.titles[id]}, true
	case *tg.PeerChannel:
		id := markedChannelID(p.ChannelID)
		entry := Dialog{ChatID: id, Type: "channel", Title: s.titles[id]}
		if ch, ok := s.channelMeta[p.ChannelID]; ok {
			if ch.Megagroup {
				entry.Type = "supergroup"
			}
			entry.Forum = ch.Forum
		}
		return entry, true
	}
	return Dialog{}, false
}

func markedPeerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return markedUserID(p.UserID)
	case *tg.PeerChat:
		return markedChatID(p.ChatID)
	case *tg.PeerChannel:
		return markedChannelID(p.ChannelID)
	}
	return 0
}

func topMessageDate(messages []tg.MessageClass, topID int) int {
	for _, mc := range messages {
		switch m := mc.(type) {
		case *tg.Message:
			if m.ID == topID {
				return m.Date
			}
		case *tg.MessageService:
			if m.ID == topID {
				return m.Date
			}
		}
	}
	return 0
}

func userTitle(u *tg.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}
