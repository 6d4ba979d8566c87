package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"keyword_forwarder/internal/deliver"
	"keyword_forwarder/internal/model"
)

// Forward re-sends msg into the destination chat preserving the
// original sender attribution.
func (s *Session) Forward(ctx context.Context, msg model.Message, destChatID int64) error {
	from, err := s.resolvePeer(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	to, err := s.resolvePeer(ctx, destChatID)
	if err != nil {
		return err
	}

	_, err = s.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ToPeer:   to,
		ID:       []int{int(msg.ID)},
		RandomID: []int64{rand.Int64()},
	})
	return s.classifySendErr(err)
}

// Copy re-sends the message's content as new, used when the source chat
// restricts forwarding. Media is resolved from the reference cached
// during scanning.
func (s *Session) Copy(ctx context.Context, msg model.Message, destChatID int64) error {
	to, err := s.resolvePeer(ctx, destChatID)
	if err != nil {
		return err
	}

	if media, ok := s.media[mediaKey{chatID: msg.ChatID, msgID: msg.ID}]; ok {
		_, err = s.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     to,
			Media:    media,
			Message:  msg.Text,
			RandomID: rand.Int64(),
		})
		return s.classifySendErr(err)
	}
	if msg.Text == "" {
		return errors.New("no copyable content")
	}
	_, err = s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     to,
		Message:  msg.Text,
		RandomID: rand.Int64(),
	})
	return s.classifySendErr(err)
}

// Send posts a plain text message to a chat.
func (s *Session) Send(ctx context.Context, chatID int64, text string) error {
	peer, err := s.resolvePeer(ctx, chatID)
	if err != nil {
		return err
	}
	_, err = s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int64(),
	})
	return s.classifySendErr(err)
}

// DeleteAll removes every message of a chat in batches and returns the
// number deleted. Used for the optional destination pre-clean.
func (s *Session) DeleteAll(ctx context.Context, chatID int64) (int, error) {
	peer, err := s.resolvePeer(ctx, chatID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for {
		ids, err := s.messageIDs(ctx, peer, chatID)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}
		if err := s.deleteBatch(ctx, peer, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)
	}
}

func (s *Session) messageIDs(ctx context.Context, peer tg.InputPeerClass, chatID int64) ([]int, error) {
	var resp tg.MessagesMessagesClass
	err := s.withFloodWait(ctx, func() error {
		var rpcErr error
		resp, rpcErr = s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  peer,
			Limit: historyPageSize,
		})
		return rpcErr
	})
	if err != nil {
		return nil, fmt.Errorf("get history for %d: %w", chatID, err)
	}
	modified, ok := resp.AsModified()
	if !ok {
		return nil, nil
	}
	var ids []int
	for _, mc := range modified.GetMessages() {
		if id := rawMessageID(mc); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Session) deleteBatch(ctx context.Context, peer tg.InputPeerClass, ids []int) error {
	return s.withFloodWait(ctx, func() error {
		var err error
		if channel, ok := peer.(*tg.InputPeerChannel); ok {
			_, err = s.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
				Channel: &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
				ID:      ids,
			})
		} else {
			_, err = s.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
				ID:     ids,
				Revoke: true,
			})
		}
		return err
	})
}

// classifySendErr maps RPC errors onto the delivery error taxonomy so
// the engine can branch without knowing MTProto error strings.
func (s *Session) classifySendErr(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &deliver.TransientError{Err: err, RetryAfter: wait}
	}
	if tgerr.Is(err, "CHAT_FORWARDS_RESTRICTED") {
		return fmt.Errorf("%w: %v", deliver.ErrRestricted, err)
	}
	return err
}
