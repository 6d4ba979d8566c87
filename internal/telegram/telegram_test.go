package telegram

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"keyword_forwarder/internal/deliver"
)

func newTestSession() *Session {
	return &Session{
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		peers:       make(map[int64]tg.InputPeerClass),
		channels:    make(map[int64]*tg.InputChannel),
		channelMeta: make(map[int64]*tg.Channel),
		titles:      make(map[int64]string),
		media:       make(map[mediaKey]tg.InputMediaClass),
	}
}

func TestMarkedIDs(t *testing.T) {
	tests := []struct {
		name string
		peer tg.PeerClass
		want int64
	}{
		{name: "user", peer: &tg.PeerUser{UserID: 12345}, want: 12345},
		{name: "basic group", peer: &tg.PeerChat{ChatID: 67890}, want: -67890},
		{name: "channel", peer: &tg.PeerChannel{ChannelID: 1234567890}, want: -1001234567890},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markedPeerID(tt.peer); got != tt.want {
				t.Errorf("markedPeerID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRegisterAndDialogEntry(t *testing.T) {
	s := newTestSession()
	s.register(
		[]tg.ChatClass{
			&tg.Chat{ID: 500, Title: "Old Group"},
			&tg.Channel{ID: 900, Title: "News", AccessHash: 7},
			&tg.Channel{ID: 901, Title: "Forum SG", AccessHash: 8, Megagroup: true, Forum: true},
		},
		[]tg.UserClass{
			&tg.User{ID: 42, FirstName: "Ada", LastName: "Lovelace"},
		},
	)

	tests := []struct {
		name string
		peer tg.PeerClass
		want Dialog
	}{
		{
			name: "user",
			peer: &tg.PeerUser{UserID: 42},
			want: Dialog{ChatID: 42, Type: "private", Title: "Ada Lovelace"},
		},
		{
			name: "basic group",
			peer: &tg.PeerChat{ChatID: 500},
			want: Dialog{ChatID: -500, Type: "group", Title: "Old Group"},
		},
		{
			name: "broadcast channel",
			peer: &tg.PeerChannel{ChannelID: 900},
			want: Dialog{ChatID: -1000000000900, Type: "channel", Title: "News"},
		},
		{
			name: "forum supergroup",
			peer: &tg.PeerChannel{ChannelID: 901},
			want: Dialog{ChatID: -1000000000901, Type: "supergroup", Title: "Forum SG", Forum: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.dialogEntry(tt.peer)
			if !ok {
				t.Fatal("dialogEntry returned no entry")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}

	// Peer cache was filled with resolvable input peers.
	if _, ok := s.peers[-1000000000901].(*tg.InputPeerChannel); !ok {
		t.Errorf("supergroup peer not cached: %T", s.peers[-1000000000901])
	}
	if _, ok := s.channels[-1000000000901]; !ok {
		t.Error("supergroup input channel not cached")
	}
}

func TestUserTitle(t *testing.T) {
	tests := []struct {
		name string
		user *tg.User
		want string
	}{
		{name: "full name", user: &tg.User{ID: 1, FirstName: "Ada", LastName: "Lovelace"}, want: "Ada Lovelace"},
		{name: "first only", user: &tg.User{ID: 1, FirstName: "Ada"}, want: "Ada"},
		{name: "username fallback", user: &tg.User{ID: 1, Username: "ada"}, want: "ada"},
		{name: "id fallback", user: &tg.User{ID: 7}, want: "user 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := userTitle(tt.user); got != tt.want {
				t.Errorf("userTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopicOf(t *testing.T) {
	topicMsg := &tg.Message{ID: 10}
	header := &tg.MessageReplyHeader{ForumTopic: true}
	header.SetReplyToTopID(77)
	header.SetReplyToMsgID(50)
	topicMsg.SetReplyTo(header)

	rootReply := &tg.Message{ID: 11}
	rootHeader := &tg.MessageReplyHeader{ForumTopic: true}
	rootHeader.SetReplyToMsgID(77)
	rootReply.SetReplyTo(rootHeader)

	plainReply := &tg.Message{ID: 12}
	plainHeader := &tg.MessageReplyHeader{}
	plainHeader.SetReplyToMsgID(5)
	plainReply.SetReplyTo(plainHeader)

	tests := []struct {
		name string
		msg  *tg.Message
		want int64
	}{
		{name: "topic reply uses top id", msg: topicMsg, want: 77},
		{name: "direct topic message uses msg id", msg: rootReply, want: 77},
		{name: "plain reply is not a topic", msg: plainReply, want: 0},
		{name: "no reply header", msg: &tg.Message{ID: 13}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := topicOf(tt.msg); got != tt.want {
				t.Errorf("topicOf = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInputMediaFrom(t *testing.T) {
	photoMedia := &tg.MessageMediaPhoto{}
	photoMedia.SetPhoto(&tg.Photo{ID: 1, AccessHash: 2, FileReference: []byte{3}})

	docMedia := &tg.MessageMediaDocument{}
	docMedia.SetDocument(&tg.Document{ID: 4, AccessHash: 5, FileReference: []byte{6}})

	tests := []struct {
		name   string
		media  tg.MessageMediaClass
		usable bool
	}{
		{name: "photo", media: photoMedia, usable: true},
		{name: "document", media: docMedia, usable: true},
		{name: "web page preview", media: &tg.MessageMediaWebPage{}, usable: false},
		{name: "empty photo", media: &tg.MessageMediaPhoto{}, usable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, ok := inputMediaFrom(tt.media)
			if ok != tt.usable {
				t.Fatalf("usable = %v, want %v", ok, tt.usable)
			}
			if ok && input == nil {
				t.Error("usable media yielded nil input")
			}
		})
	}
}

func TestPruneMedia(t *testing.T) {
	s := newTestSession()
	s.media[mediaKey{chatID: 1, msgID: 10}] = &tg.InputMediaPhoto{}
	s.media[mediaKey{chatID: 1, msgID: 11}] = &tg.InputMediaPhoto{}
	s.media[mediaKey{chatID: 2, msgID: 5}] = &tg.InputMediaPhoto{}

	s.pruneMedia(1)

	if len(s.media) != 1 {
		t.Errorf("cache size = %d, want 1", len(s.media))
	}
	if _, ok := s.media[mediaKey{chatID: 2, msgID: 5}]; !ok {
		t.Error("other chat's media evicted")
	}
}

func TestClassifySendErr(t *testing.T) {
	s := newTestSession()

	if got := s.classifySendErr(nil); got != nil {
		t.Errorf("nil error classified as %v", got)
	}

	flood := tgerr.New(420, "FLOOD_WAIT_30")
	classified := s.classifySendErr(flood)
	var transient *deliver.TransientError
	if !errors.As(classified, &transient) {
		t.Fatalf("flood wait not transient: %v", classified)
	}
	if transient.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", transient.RetryAfter)
	}

	restricted := tgerr.New(403, "CHAT_FORWARDS_RESTRICTED")
	if got := s.classifySendErr(restricted); !errors.Is(got, deliver.ErrRestricted) {
		t.Errorf("forwards restricted not classified: %v", got)
	}

	other := errors.New("network down")
	if got := s.classifySendErr(other); got != other {
		t.Errorf("unknown error rewritten: %v", got)
	}
}

func TestRawMessageID(t *testing.T) {
	tests := []struct {
		name string
		msg  tg.MessageClass
		want int
	}{
		{name: "message", msg: &tg.Message{ID: 7}, want: 7},
		{name: "service message", msg: &tg.MessageService{ID: 8}, want: 8},
		{name: "empty message", msg: &tg.MessageEmpty{ID: 9}, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rawMessageID(tt.msg); got != tt.want {
				t.Errorf("rawMessageID = %d, want %d", got, tt.want)
			}
		})
	}
}
