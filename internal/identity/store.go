package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brigadepos/edgelink/internal/settings"
)

const (
	// IdentityKey is the well-known settings key holding the singleton
	// identity record.
	IdentityKey = "onsite_identity"

	// LinkKey duplicates the realized cloud link for collaborators that
	// only need a fast read of the link and nothing else.
	LinkKey = "cloud_edge_link"
)

// Store persists the identity record in the onsite settings store.
type Store struct {
	settings *settings.Store
}

func NewStore(s *settings.Store) *Store {
	return &Store{settings: s}
}

// GetOrCreate loads the installation identity, creating it on first
// call. The ServerUID is generated exactly once and never changes.
func (s *Store) GetOrCreate(ctx context.Context) (*Identity, error) {
	id, err := s.Get(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, settings.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	id = &Identity{
		ServerUID: uuid.NewString(),
		State:     StateUnclaimed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, id); err != nil {
		return nil, err
	}

	slog.Info("Onsite identity created", "server_uid", id.ServerUID)
	return id, nil
}

// Get loads and validates the stored identity. A record that fails
// validation is an error, not something to patch around.
func (s *Store) Get(ctx context.Context) (*Identity, error) {
	raw, err := s.settings.Get(ctx, IdentityKey)
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, fmt.Errorf("failed to decode identity record: %w", err)
	}
	if err := id.validate(); err != nil {
		return nil, fmt.Errorf("invalid identity record: %w", err)
	}
	return &id, nil
}

// Save validates and persists the identity, and mirrors the cloud link
// under its fast-read key.
func (s *Store) Save(ctx context.Context, id *Identity) error {
	if err := id.validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid identity: %w", err)
	}
	id.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode identity record: %w", err)
	}
	if err := s.settings.Put(ctx, IdentityKey, string(raw)); err != nil {
		return err
	}

	if id.Link != nil {
		linkRaw, err := json.Marshal(id.Link)
		if err != nil {
			return fmt.Errorf("failed to encode cloud link: %w", err)
		}
		return s.settings.Put(ctx, LinkKey, string(linkRaw))
	}
	return s.settings.Delete(ctx, LinkKey)
}
