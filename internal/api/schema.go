package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/subscribr/web/internal/models"
)

type createUserRequest struct {
	Username string `json:"username"`
}

// flexibleID accepts identifiers encoded either as JSON strings or numbers.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(strings.TrimSpace(s))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("identifier must be a string or number: %w", err)
		}
		*id = flexibleID(n.String())
		return nil
	}
}

type userSchema struct {
	ID       flexibleID `json:"id"`
	Username string     `json:"username"`
}

func (s userSchema) parse(op string) (models.User, error) {
	if s.ID == "" {
		return models.User{}, fmt.Errorf("%s: %w: user without id", op, ErrMalformedResponse)
	}
	return models.User{ID: string(s.ID), Username: s.Username}, nil
}

type profileSchema struct {
	ID            flexibleID   `json:"id"`
	Username      string       `json:"username"`
	Subscriptions []userSchema `json:"subscriptions"`
}

func (s profileSchema) parse(op string) (models.Profile, error) {
	if s.ID == "" {
		return models.Profile{}, fmt.Errorf("%s: %w: user without id", op, ErrMalformedResponse)
	}
	subscriptions, err := parseUsers(op, s.Subscriptions)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{ID: string(s.ID), Username: s.Username, Subscriptions: subscriptions}, nil
}

func parseUsers(op string, in []userSchema) ([]models.User, error) {
	out := make([]models.User, 0, len(in))
	for _, raw := range in {
		user, err := raw.parse(op)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, nil
}
