package telegram

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gotd/td/tg"

	"keyword_forwarder/internal/model"
	"keyword_forwarder/internal/window"
)

const historyPageSize = 100

// Messages streams the chat history inside the window in increasing ID
// order, calling fn once per message. The server returns history newest
// first, so pages are collected down to the window's lower bound and
// replayed ascending. Service messages are skipped. Media references of
// scanned messages are cached so a later copy can re-send them.
func (s *Session) Messages(ctx context.Context, chatID, topicID int64, w window.Window, fn func(model.Message) error) error {
	peer, err := s.resolvePeer(ctx, chatID)
	if err != nil {
		return err
	}
	s.pruneMedia(chatID)

	collected, err := s.collectHistory(ctx, peer, chatID, w)
	if err != nil {
		return err
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID < collected[j].ID })
	for _, m := range collected {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) collectHistory(ctx context.Context, peer tg.InputPeerClass, chatID int64, w window.Window) ([]model.Message, error) {
	var collected []model.Message
	offsetID := 0

	for {
		req := &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyPageSize,
		}
		if w.MinID > 0 {
			req.MinID = int(w.MinID)
		}

		var resp tg.MessagesMessagesClass
		err := s.withFloodWait(ctx, func() error {
			var rpcErr error
			resp, rpcErr = s.api.MessagesGetHistory(ctx, req)
			return rpcErr
		})
		if err != nil {
			return nil, fmt.Errorf("get history for %d: %w", chatID, err)
		}

		modified, ok := resp.AsModified()
		if !ok {
			return collected, nil
		}
		msgs := modified.GetMessages()
		if len(msgs) == 0 {
			return collected, nil
		}

		// Newest first within a page; stop once the lower bound is crossed.
		for _, mc := range msgs {
			id := rawMessageID(mc)
			if id > 0 {
				offsetID = id
			}

			m, ok := mc.(*tg.Message)
			if !ok {
				continue
			}
			date := time.Unix(int64(m.Date), 0).UTC()
			if !w.Contains(int64(m.ID), date) {
				return collected, nil
			}
			collected = append(collected, s.toModel(m, chatID, date))
		}

		if len(msgs) < historyPageSize {
			return collected, nil
		}
	}
}

// pruneMedia drops media cached by a previous scan of the chat. The
// deliveries that needed those references have concluded, so the cache
// never outgrows one scan per chat in watch mode.
func (s *Session) pruneMedia(chatID int64) {
	for k := range s.media {
		if k.chatID == chatID {
			delete(s.media, k)
		}
	}
}

func (s *Session) toModel(m *tg.Message, chatID int64, date time.Time) model.Message {
	msg := model.Message{
		ID:      int64(m.ID),
		ChatID:  chatID,
		TopicID: topicOf(m),
		Date:    date,
		Text:    m.Message,
	}
	if media, ok := m.GetMedia(); ok {
		if input, usable := inputMediaFrom(media); usable {
			s.media[mediaKey{chatID: chatID, msgID: msg.ID}] = input
			msg.HasMedia = true
		}
	}
	return msg
}

// topicOf extracts the forum topic ID of a message, 0 when the message
// does not belong to a topic.
func topicOf(m *tg.Message) int64 {
	header, ok := m.GetReplyTo()
	if !ok {
		return 0
	}
	rh, ok := header.(*tg.MessageReplyHeader)
	if !ok || !rh.ForumTopic {
		return 0
	}
	if topID, ok := rh.GetReplyToTopID(); ok {
		return int64(topID)
	}
	if msgID, ok := rh.GetReplyToMsgID(); ok {
		return int64(msgID)
	}
	return 0
}

// inputMediaFrom converts re-sendable media (photos and documents) to
// the input form used by messages.sendMedia. Other media kinds, such as
// web page previews, are not separately sendable.
func inputMediaFrom(media tg.MessageMediaClass) (tg.InputMediaClass, bool) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		pc, ok := m.GetPhoto()
		if !ok {
			return nil, false
		}
		photo, ok := pc.(*tg.Photo)
		if !ok {
			return nil, false
		}
		return &tg.InputMediaPhoto{ID: &tg.InputPhoto{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
		}}, true
	case *tg.MessageMediaDocument:
		dc, ok := m.GetDocument()
		if !ok {
			return nil, false
		}
		doc, ok := dc.(*tg.Document)
		if !ok {
			return nil, false
		}
		return &tg.InputMediaDocument{ID: &tg.InputDocument{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}}, true
	}
	return nil, false
}

func rawMessageID(mc tg.MessageClass) int {
	switch m := mc.(type) {
	case *tg.Message:
		return m.ID
	case *tg.MessageService:
		return m.ID
	case *tg.MessageEmpty:
		return m.ID
	}
	return 0
}
