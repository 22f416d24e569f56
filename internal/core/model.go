package core

import (
	"strconv"
	"time"
)

// ConversationKind classifies the conversation an event arrived in.
type ConversationKind int

const (
	KindDirect ConversationKind = iota
	KindGroup
	KindChannel
)

func (k ConversationKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindChannel:
		return "channel"
	default:
		return "direct"
	}
}

// SenderKind is resolved once per event by the protocol adapter.
type SenderKind int

const (
	SenderUnknown SenderKind = iota
	SenderHuman
	SenderBot
	SenderChannel
)

func (k SenderKind) String() string {
	switch k {
	case SenderHuman:
		return "human"
	case SenderBot:
		return "bot"
	case SenderChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Sender is the raw protocol identity of a message author.
type Sender struct {
	Kind      SenderKind
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// InboundEvent is built per protocol callback and never persisted.
type InboundEvent struct {
	Account   string
	ChatID    int64 // raw protocol peer id
	MarkedID  int64 // protocol-marked id (-id for basic groups, -100id for supergroups)
	ChatTitle string
	Kind      ConversationKind
	SenderID  int64 // 0 when the protocol carried no sender
	Sender    *Sender
	Text      string
	Date      time.Time
}

// GroupID returns the conversation id in the form forwarded downstream.
func (e InboundEvent) GroupID() string {
	if e.MarkedID != 0 {
		return strconv.FormatInt(e.MarkedID, 10)
	}
	return strconv.FormatInt(e.ChatID, 10)
}

// Profile is an operator-managed record from the profile store.
type Profile struct {
	UserID     string `json:"userId" db:"user_id" yaml:"userId"`
	Username   string `json:"username" db:"username" yaml:"username"`
	Nickname   string `json:"nickname" db:"nickname" yaml:"nickname"`
	IsOperator bool   `json:"isOperatorAccount" db:"is_operator" yaml:"isOperatorAccount"`
}

// GroupConfig is a watched-conversation record from the config store.
type GroupConfig struct {
	GroupID      string `json:"groupId" db:"group_id" yaml:"groupId"`
	GroupName    string `json:"groupName" db:"group_name" yaml:"groupName"`
	GroupLink    string `json:"groupLink,omitempty" db:"group_link" yaml:"groupLink"`
	IsWatched    bool   `json:"isWatched" db:"is_watched" yaml:"isWatched"`
	Configurable bool   `json:"configurable" db:"configurable" yaml:"configurable"`
}

// IdentitySource records where a ResolvedIdentity came from.
type IdentitySource string

const (
	SourceStore    IdentitySource = "store"
	SourceProtocol IdentitySource = "protocol"
)

// ResolvedIdentity is the canonical sender identity derived per event.
type ResolvedIdentity struct {
	UserID     string
	Username   string
	Nickname   string
	IsOperator bool
	Source     IdentitySource
}

// SendTimeLayout is the textual layout of ForwardPayload.SendDateTime.
const SendTimeLayout = "2006-01-02 15:04:05"

// SendZone is the fixed UTC+8 offset applied to forwarded timestamps.
var SendZone = time.FixedZone("UTC+8", 8*60*60)

// FormatSendTime normalizes a message time for the downstream sink.
func FormatSendTime(t time.Time) string {
	return t.In(SendZone).Format(SendTimeLayout)
}

// ForwardPayload is the wire body POSTed to the sink.
type ForwardPayload struct {
	GroupID      string `json:"groupId"`
	GroupName    string `json:"groupName"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Nickname     string `json:"nickname"`
	Message      string `json:"message"`
	SendDateTime string `json:"sendDateTime"`
}
