package operators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brigadepos/edgelink/internal/settings"
)

const operatorKey = "onsite_operator"

var ErrOperatorNotFound = errors.New("operator not found")

// Operator is the local administrative account allowed to start a
// pairing handshake on this installation.
type Operator struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Store struct {
	settings *settings.Store
}

func NewStore(s *settings.Store) *Store {
	return &Store{settings: s}
}

func (s *Store) Get(ctx context.Context) (*Operator, error) {
	raw, err := s.settings.Get(ctx, operatorKey)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	var op Operator
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return nil, fmt.Errorf("failed to decode operator record: %w", err)
	}
	return &op, nil
}

// Seed creates the operator account on first boot if none exists.
func (s *Store) Seed(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.Get(ctx); err == nil {
		return nil
	} else if !errors.Is(err, ErrOperatorNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	op := Operator{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode operator record: %w", err)
	}
	if err := s.settings.Put(ctx, operatorKey, string(raw)); err != nil {
		return err
	}

	slog.Info("Seeded local operator account", "username", username)
	return nil
}
