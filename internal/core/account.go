package core

import (
	"fmt"
	"strings"
)

// Role selects how an account's events are handled.
type Role int

const (
	RoleKeywords Role = iota
	RoleAllMessages
)

func (r Role) String() string {
	switch r {
	case RoleAllMessages:
		return "allMessages"
	default:
		return "keywords"
	}
}

// ParseRole maps the accounts file "type" field. Empty means keywords.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "keywords":
		return RoleKeywords, nil
	case "allmessages", "all_messages", "all":
		return RoleAllMessages, nil
	default:
		return RoleKeywords, fmt.Errorf("unknown account type %q", raw)
	}
}

// AccountConfig describes one protocol account. Password is only kept for
// parity with existing account files; interactive login is not supported.
type AccountConfig struct {
	Phone    string
	Session  string
	APIID    int
	APIHash  string
	Password string
	Role     Role
}

// Label identifies the account in logs and metrics without the full number.
func (a AccountConfig) Label() string {
	phone := strings.TrimSpace(a.Phone)
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
