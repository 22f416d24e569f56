package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/watchset"
)

func entities() tg.Entities {
	return tg.Entities{
		Users: map[int64]*tg.User{
			7:  {ID: 7, Username: "alice", FirstName: "Alice", LastName: "Smith"},
			9:  {ID: 9, Username: "helper_bot", FirstName: "Helper", Bot: true},
			11: {ID: 11, FirstName: "Dana"},
		},
		Chats: map[int64]*tg.Chat{
			42: {ID: 42, Title: "Basic group"},
		},
		Channels: map[int64]*tg.Channel{
			123456789: {ID: 123456789, Title: "Lobby", Megagroup: true},
			555:       {ID: 555, Title: "News", Broadcast: true},
		},
	}
}

func TestConvertSupergroupMessage(t *testing.T) {
	msg := &tg.Message{
		PeerID:  &tg.PeerChannel{ChannelID: 123456789},
		FromID:  &tg.PeerUser{UserID: 7},
		Message: "hi",
		Date:    1714564800,
	}
	ev, ok := Convert("acct", msg, entities())
	if !ok {
		t.Fatalf("expected conversion")
	}
	if ev.Kind != core.KindGroup || ev.ChatID != 123456789 || ev.ChatTitle != "Lobby" {
		t.Fatalf("unexpected conversation fields %+v", ev)
	}
	if ev.GroupID() != "-100123456789" {
		t.Fatalf("group id = %q", ev.GroupID())
	}
	if ev.SenderID != 7 || ev.Sender == nil || ev.Sender.Kind != core.SenderHuman || ev.Sender.Username != "alice" {
		t.Fatalf("unexpected sender %+v", ev.Sender)
	}
	if !ev.Date.Equal(time.Unix(1714564800, 0)) || ev.Text != "hi" || ev.Account != "acct" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestConvertMarkedIDsMatchWatchEncodings(t *testing.T) {
	set := map[string]struct{}{}
	contains := containsFunc(func(id string) bool { _, ok := set[id]; return ok })

	for _, tc := range []struct {
		peer tg.PeerClass
		raw  int64
	}{
		{&tg.PeerChannel{ChannelID: 123456789}, 123456789},
		{&tg.PeerChat{ChatID: 42}, 42},
	} {
		ev, ok := Convert("acct", &tg.Message{PeerID: tc.peer, FromID: &tg.PeerUser{UserID: 7}}, entities())
		if !ok {
			t.Fatalf("expected conversion for %T", tc.peer)
		}
		clear(set)
		set[ev.GroupID()] = struct{}{}
		if !watchset.IsWatched(contains, tc.raw) {
			t.Fatalf("marked id %s not matched by raw id %d", ev.GroupID(), tc.raw)
		}
	}
}

type containsFunc func(string) bool

func (f containsFunc) Contains(id string) bool { return f(id) }

func TestConvertConversationKinds(t *testing.T) {
	cases := []struct {
		name   string
		peer   tg.PeerClass
		want   core.ConversationKind
		marked string
	}{
		{"basic group", &tg.PeerChat{ChatID: 42}, core.KindGroup, "-42"},
		{"broadcast channel", &tg.PeerChannel{ChannelID: 555}, core.KindChannel, "-100555"},
		{"direct", &tg.PeerUser{UserID: 11}, core.KindDirect, "11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := Convert("acct", &tg.Message{PeerID: tc.peer, FromID: &tg.PeerUser{UserID: 7}}, entities())
			if !ok {
				t.Fatalf("expected conversion")
			}
			if ev.Kind != tc.want || ev.GroupID() != tc.marked {
				t.Fatalf("kind=%v id=%s, want %v %s", ev.Kind, ev.GroupID(), tc.want, tc.marked)
			}
		})
	}
}

func TestConvertSenderKinds(t *testing.T) {
	base := func(from tg.PeerClass) *tg.Message {
		m := &tg.Message{PeerID: &tg.PeerChannel{ChannelID: 123456789}}
		if from != nil {
			m.FromID = from
		}
		return m
	}

	ev, _ := Convert("acct", base(&tg.PeerUser{UserID: 9}), entities())
	if ev.Sender == nil || ev.Sender.Kind != core.SenderBot {
		t.Fatalf("expected bot sender, got %+v", ev.Sender)
	}

	ev, _ = Convert("acct", base(&tg.PeerChannel{ChannelID: 555}), entities())
	if ev.Sender == nil || ev.Sender.Kind != core.SenderChannel || ev.SenderID != 555 {
		t.Fatalf("expected channel sender, got %+v", ev.Sender)
	}

	ev, _ = Convert("acct", base(&tg.PeerUser{UserID: 999}), entities())
	if ev.Sender == nil || ev.Sender.Kind != core.SenderUnknown || ev.SenderID != 999 {
		t.Fatalf("expected unknown sender for missing entity, got %+v", ev.Sender)
	}

	ev, _ = Convert("acct", base(nil), entities())
	if ev.Sender != nil || ev.SenderID != 0 {
		t.Fatalf("expected anonymous sender, got %+v", ev.Sender)
	}
}

func TestConvertPrivateChatUsesPeerAsSender(t *testing.T) {
	ev, ok := Convert("acct", &tg.Message{PeerID: &tg.PeerUser{UserID: 11}, Message: "yo"}, entities())
	if !ok {
		t.Fatalf("expected conversion")
	}
	if ev.SenderID != 11 || ev.Sender == nil || ev.Sender.FirstName != "Dana" || ev.ChatTitle != "Dana" {
		t.Fatalf("unexpected event %+v sender %+v", ev, ev.Sender)
	}
}

func TestConvertSkipsServiceMessages(t *testing.T) {
	if _, ok := Convert("acct", &tg.MessageService{PeerID: &tg.PeerChat{ChatID: 42}}, entities()); ok {
		t.Fatalf("service messages must be skipped")
	}
	if _, ok := Convert("acct", &tg.MessageEmpty{}, entities()); ok {
		t.Fatalf("empty messages must be skipped")
	}
}

func TestMarkedIDHelpers(t *testing.T) {
	if ChannelMarkedID(123456789) != -100123456789 {
		t.Fatalf("channel marked id = %d", ChannelMarkedID(123456789))
	}
	if ChannelMarkedID(1234567890) != -1_000_000_000_000-1234567890 {
		t.Fatalf("channel marked id = %d", ChannelMarkedID(1234567890))
	}
	if ChatMarkedID(42) != -42 {
		t.Fatalf("chat marked id = %d", ChatMarkedID(42))
	}
}
