package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/you/groupwatch/internal/core"
)

// ChannelMarkedID returns the marked id of a channel or supergroup: -100
// followed by the id digits. For current 10-digit ids this equals the
// protocol's -(10^12 + id).
func ChannelMarkedID(id int64) int64 {
	shift := int64(1)
	for v := id; v > 0; v /= 10 {
		shift *= 10
	}
	return -(100*shift + id)
}

// ChatMarkedID returns the marked id of a basic group.
func ChatMarkedID(id int64) int64 { return -id }

// Convert builds an InboundEvent from a protocol message and the entities
// delivered with its update. It reports false for non-text message kinds.
func Convert(account string, raw tg.MessageClass, e tg.Entities) (core.InboundEvent, bool) {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return core.InboundEvent{}, false
	}

	ev := core.InboundEvent{
		Account: account,
		Text:    msg.Message,
		Date:    time.Unix(int64(msg.Date), 0),
	}

	switch peer := msg.PeerID.(type) {
	case *tg.PeerUser:
		ev.Kind = core.KindDirect
		ev.ChatID = peer.UserID
		ev.MarkedID = peer.UserID
		if u := e.Users[peer.UserID]; u != nil {
			ev.ChatTitle = displayName(u)
		}
	case *tg.PeerChat:
		ev.Kind = core.KindGroup
		ev.ChatID = peer.ChatID
		ev.MarkedID = ChatMarkedID(peer.ChatID)
		if c := e.Chats[peer.ChatID]; c != nil {
			ev.ChatTitle = c.Title
		}
	case *tg.PeerChannel:
		ev.ChatID = peer.ChannelID
		ev.MarkedID = ChannelMarkedID(peer.ChannelID)
		ev.Kind = core.KindGroup
		if ch := e.Channels[peer.ChannelID]; ch != nil {
			ev.ChatTitle = ch.Title
			if ch.Broadcast && !ch.Megagroup {
				ev.Kind = core.KindChannel
			}
		}
	default:
		return core.InboundEvent{}, false
	}

	from := msg.FromID
	hasFrom := from != nil
	if !hasFrom {
		// Private chats omit from_id for the peer's own messages.
		if p, ok := msg.PeerID.(*tg.PeerUser); ok && !msg.Out {
			from, hasFrom = p, true
		}
	}
	if hasFrom {
		ev.SenderID, ev.Sender = resolveSender(from, e)
	}
	return ev, true
}

func resolveSender(from tg.PeerClass, e tg.Entities) (int64, *core.Sender) {
	switch p := from.(type) {
	case *tg.PeerUser:
		u := e.Users[p.UserID]
		if u == nil {
			return p.UserID, &core.Sender{Kind: core.SenderUnknown, ID: p.UserID}
		}
		kind := core.SenderHuman
		if u.Bot {
			kind = core.SenderBot
		}
		return p.UserID, &core.Sender{
			Kind:      kind,
			ID:        u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		}
	case *tg.PeerChannel:
		s := &core.Sender{Kind: core.SenderChannel, ID: p.ChannelID}
		if ch := e.Channels[p.ChannelID]; ch != nil {
			s.Username = ch.Username
			s.FirstName = ch.Title
		}
		return p.ChannelID, s
	case *tg.PeerChat:
		return p.ChatID, &core.Sender{Kind: core.SenderUnknown, ID: p.ChatID}
	default:
		return 0, nil
	}
}

func displayName(u *tg.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}
