package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/you/groupwatch/internal/core"
)

// ErrNoAccounts is returned when the accounts file lists nothing to run.
var ErrNoAccounts = errors.New("config: no accounts configured")

type accountEntry struct {
	Phone    string `yaml:"phone"`
	Session  string `yaml:"session"`
	APIID    int    `yaml:"api_id"`
	APIHash  string `yaml:"api_hash"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"`
}

// LoadAccounts reads the ordered account list. The file may be JSON (the
// historical format) or YAML.
func LoadAccounts(path string) ([]core.AccountConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read accounts: %w", err)
	}
	return ParseAccounts(raw)
}

func ParseAccounts(raw []byte) ([]core.AccountConfig, error) {
	var entries []accountEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("config: parse accounts: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoAccounts
	}

	out := make([]core.AccountConfig, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		phone := strings.TrimSpace(e.Phone)
		if phone == "" {
			return nil, fmt.Errorf("config: account %d: phone is required", i)
		}
		if _, dup := seen[phone]; dup {
			return nil, fmt.Errorf("config: account %d: duplicate phone %s", i, phone)
		}
		seen[phone] = struct{}{}
		if e.APIID <= 0 || strings.TrimSpace(e.APIHash) == "" {
			return nil, fmt.Errorf("config: account %d: api_id and api_hash are required", i)
		}
		role, err := core.ParseRole(e.Type)
		if err != nil {
			return nil, fmt.Errorf("config: account %d: %w", i, err)
		}
		session := strings.TrimSpace(e.Session)
		if session == "" {
			session = strings.TrimPrefix(phone, "+") + ".session.json"
		}
		out = append(out, core.AccountConfig{
			Phone:    phone,
			Session:  session,
			APIID:    e.APIID,
			APIHash:  strings.TrimSpace(e.APIHash),
			Password: e.Password,
			Role:     role,
		})
	}
	return out, nil
}
