package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brigadepos/edgelink/internal/identity"
	"github.com/brigadepos/edgelink/internal/secrets"
	"github.com/brigadepos/edgelink/internal/settings"
)

const (
	claimIDPrefix       = "clm_"
	finalizeTokenPrefix = "fin_"

	DefaultClaimTTL = 20 * time.Minute
	MinClaimTTL     = 1 * time.Minute
	MaxClaimTTL     = 60 * time.Minute

	finalizeTTL = 30 * time.Minute
)

// Settings keys for the non-secret store hints returned to the pairing
// UI after a successful claim consumption.
const (
	StoreNameKey     = "store_name"
	StoreAddressKey  = "store_address"
	StoreTimezoneKey = "store_timezone"
)

var (
	ErrClaimNotFound    = errors.New("claim not found")
	ErrClaimUsed        = errors.New("claim has already been used")
	ErrClaimExpired     = errors.New("claim has expired")
	ErrClaimMismatch    = errors.New("claim code does not match")
	ErrFinalizeNotFound = errors.New("no pending finalize")
	ErrFinalizeUsed     = errors.New("finalize token has already been used")
	ErrFinalizeExpired  = errors.New("finalize token has expired")
	ErrFinalizeMismatch = errors.New("finalize token does not match")
)

// Service owns the pairing handshake on the onsite side. All identity
// mutations go through a single mutex: the identity is one record, and
// two concurrent claim operations must not interleave on it.
type Service struct {
	mu       sync.Mutex
	store    *identity.Store
	settings *settings.Store
}

func NewService(store *identity.Store, settings *settings.Store) *Service {
	return &Service{store: store, settings: settings}
}

type ClaimResult struct {
	ServerUID   string
	ServerLabel string
	ClaimID     string
	ClaimCode   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type ConsumeResult struct {
	ServerUID         string
	ServerLabel       string
	StoreNameHint     string
	AddressHint       string
	TimezoneHint      string
	FinalizeToken     string
	FinalizeExpiresAt time.Time
}

// StoreHints are the non-secret store descriptors shown to the cloud
// operator when confirming a pairing.
type StoreHints struct {
	Name     string
	Address  string
	Timezone string
}

type FinalizeParams struct {
	Token          string
	CloudStoreID   string
	CloudStoreCode string
	CloudNodeID    string
	NodeKey        string
	NodeToken      string
	CloudBaseURL   string
	LinkedBy       string
}

// IssueClaim mints a fresh claim, silently invalidating any prior claim
// and any pending finalize. The plaintext code is returned exactly once.
func (s *Service) IssueClaim(ctx context.Context, label string, ttl time.Duration, issuedBy string) (*ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	if ttl < MinClaimTTL {
		ttl = MinClaimTTL
	}
	if ttl > MaxClaimTTL {
		ttl = MaxClaimTTL
	}

	id, err := s.store.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	claimID := claimIDPrefix + uuid.NewString()
	code, err := secrets.GenerateClaimCode()
	if err != nil {
		return nil, fmt.Errorf("generate claim code: %w", err)
	}

	now := time.Now().UTC()
	id.Claim = &identity.ClaimRecord{
		ID:        claimID,
		CodeHash:  secrets.ClaimCodeHash(claimID, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		IssuedBy:  issuedBy,
	}
	id.Finalize = nil
	if label != "" {
		id.Label = label
	}
	if !id.Linked() {
		id.State = identity.StateClaimIssued
	}
	// Re-pairing keeps the existing link valid until a new finalize
	// replaces it; the fresh claim rides alongside the linked state.

	if err := s.store.Save(ctx, id); err != nil {
		return nil, fmt.Errorf("persist claim: %w", err)
	}

	slog.Info("Pairing claim issued",
		"claim_id", claimID,
		"expires_at", id.Claim.ExpiresAt,
		"issued_by", issuedBy)

	return &ClaimResult{
		ServerUID:   id.ServerUID,
		ServerLabel: id.Label,
		ClaimID:     claimID,
		ClaimCode:   code,
		IssuedAt:    now,
		ExpiresAt:   id.Claim.ExpiresAt,
	}, nil
}

// ConsumeClaim validates a presented claim and, on success, marks it
// used and mints the finalize token. The call is unauthenticated; the
// code itself is the credential.
func (s *Service) ConsumeClaim(ctx context.Context, claimID, claimCode string) (*ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	claim := id.Claim
	if claim == nil || claim.ID != claimID {
		return nil, ErrClaimNotFound
	}
	if claim.Used() {
		return nil, ErrClaimUsed
	}
	now := time.Now().UTC()
	if claim.Expired(now) {
		return nil, ErrClaimExpired
	}
	if !secrets.Equal(secrets.ClaimCodeHash(claimID, claimCode), claim.CodeHash) {
		slog.Warn("Pairing claim code mismatch", "claim_id", claimID)
		return nil, ErrClaimMismatch
	}

	token, err := secrets.Generate(secrets.DefaultSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate finalize token: %w", err)
	}
	token = finalizeTokenPrefix + token

	claim.UsedAt = &now
	id.Finalize = &identity.FinalizeRecord{
		TokenHash: secrets.Hash(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(finalizeTTL),
	}
	if !id.Linked() {
		id.State = identity.StateClaimConsumed
	}

	if err := s.store.Save(ctx, id); err != nil {
		return nil, fmt.Errorf("persist consumed claim: %w", err)
	}

	slog.Info("Pairing claim consumed", "claim_id", claimID)

	hints := s.Hints(ctx)
	return &ConsumeResult{
		ServerUID:         id.ServerUID,
		ServerLabel:       id.Label,
		StoreNameHint:     hints.Name,
		AddressHint:       hints.Address,
		TimezoneHint:      hints.Timezone,
		FinalizeToken:     token,
		FinalizeExpiresAt: id.Finalize.ExpiresAt,
	}, nil
}

// Finalize validates the finalize token and persists the cloud link.
// The supplied cloud identifiers are taken on trust here; the first
// accepted heartbeat is where the cloud actually vouches for them.
func (s *Service) Finalize(ctx context.Context, p FinalizeParams) (*identity.CloudLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	fin := id.Finalize
	if fin == nil {
		return nil, ErrFinalizeNotFound
	}
	if fin.Used() {
		return nil, ErrFinalizeUsed
	}
	now := time.Now().UTC()
	if fin.Expired(now) {
		return nil, ErrFinalizeExpired
	}
	if !secrets.Equal(secrets.Hash(p.Token), fin.TokenHash) {
		slog.Warn("Pairing finalize token mismatch")
		return nil, ErrFinalizeMismatch
	}

	fin.UsedAt = &now
	link := &identity.CloudLink{
		CloudStoreID:   p.CloudStoreID,
		CloudStoreCode: p.CloudStoreCode,
		CloudNodeID:    p.CloudNodeID,
		NodeKey:        p.NodeKey,
		NodeToken:      p.NodeToken,
		CloudBaseURL:   p.CloudBaseURL,
		LinkedAt:       now,
		LinkedBy:       p.LinkedBy,
	}
	id.Link = link
	id.State = identity.StateLinked

	if err := s.store.Save(ctx, id); err != nil {
		return nil, fmt.Errorf("persist cloud link: %w", err)
	}

	slog.Info("Cloud link established",
		"cloud_store_id", link.CloudStoreID,
		"cloud_node_id", link.CloudNodeID,
		"linked_by", link.LinkedBy)

	return link, nil
}

// Identity returns the current identity record, creating it if needed.
func (s *Service) Identity(ctx context.Context) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetOrCreate(ctx)
}

// Hints reads the configured store descriptors. Missing keys come back
// empty rather than erroring.
func (s *Service) Hints(ctx context.Context) StoreHints {
	return StoreHints{
		Name:     s.hint(ctx, StoreNameKey),
		Address:  s.hint(ctx, StoreAddressKey),
		Timezone: s.hint(ctx, StoreTimezoneKey),
	}
}

func (s *Service) hint(ctx context.Context, key string) string {
	value, err := s.settings.Get(ctx, key)
	if err != nil {
		return ""
	}
	return value
}
