package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brigadepos/edgelink/internal/secrets"
)

const (
	nodeKeyPrefix        = "nk_"
	nodeTokenPrefix      = "ntk_"
	bootstrapTokenPrefix = "btk_"

	nodeKeyBytes = 12

	DefaultBootstrapTTL = 1 * time.Hour
	MaxBootstrapTTL     = 24 * time.Hour
)

var (
	// ErrInvalidNodeCredentials deliberately covers both an unknown
	// nodeId and a bad token, so callers cannot probe for node
	// existence.
	ErrInvalidNodeCredentials = errors.New("invalid node credentials")

	ErrBootstrapInvalid = errors.New("bootstrap token invalid")
	ErrBootstrapExpired = errors.New("bootstrap token has expired")
	ErrBootstrapUsed    = errors.New("bootstrap token has already been used")
)

// Service authenticates inbound node calls and provisions nodes via
// administrator-issued bootstrap tokens.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Authenticate validates nodeId+token for an inbound call. On success
// it marks the node online; that is its only mutation. All failures
// after the lookup collapse into ErrInvalidNodeCredentials.
func (s *Service) Authenticate(ctx context.Context, nodeID, token string) (*StoreNode, error) {
	if nodeID == "" || token == "" {
		return nil, ErrInvalidNodeCredentials
	}

	node, err := s.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			slog.Warn("Authentication attempt for unknown node", "node_id", nodeID)
			return nil, ErrInvalidNodeCredentials
		}
		return nil, fmt.Errorf("failed to look up node: %w", err)
	}

	if !secrets.Equal(secrets.Hash(token), node.TokenHash) {
		slog.Warn("Authentication attempt with bad token", "node_id", nodeID)
		return nil, ErrInvalidNodeCredentials
	}

	now := time.Now().UTC()
	if err := s.store.MarkNodeSeen(ctx, node.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update node liveness: %w", err)
	}
	node.Status = StatusOnline
	node.LastSeenAt = &now

	return node, nil
}

type BootstrapResult struct {
	Token     *BootstrapToken
	Plaintext string
}

// IssueBootstrapToken mints a one-time provisioning credential for a
// store. Only the hash is persisted; the plaintext is returned once.
func (s *Service) IssueBootstrapToken(ctx context.Context, storeID, label string, ttl time.Duration, createdBy string) (*BootstrapResult, error) {
	if storeID == "" {
		return nil, fmt.Errorf("storeID is required")
	}
	if ttl <= 0 {
		ttl = DefaultBootstrapTTL
	}
	if ttl > MaxBootstrapTTL {
		ttl = MaxBootstrapTTL
	}

	secret, err := secrets.Generate(secrets.DefaultSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate bootstrap token: %w", err)
	}
	plaintext := bootstrapTokenPrefix + secret

	token, err := s.store.CreateBootstrapToken(ctx, CreateBootstrapTokenParams{
		StoreID:   storeID,
		Label:     label,
		TokenHash: secrets.Hash(plaintext),
		ExpiresAt: time.Now().UTC().Add(ttl),
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("store bootstrap token: %w", err)
	}

	slog.Info("Bootstrap token issued",
		"store_id", storeID,
		"token_id", token.ID,
		"expires_at", token.ExpiresAt,
		"created_by", createdBy)

	return &BootstrapResult{Token: token, Plaintext: plaintext}, nil
}

// RedeemBootstrapToken exchanges a valid bootstrap token for a freshly
// provisioned node. The node credentials are returned exactly once.
func (s *Service) RedeemBootstrapToken(ctx context.Context, plaintext, label, softwareVersion string) (*NodeCredentials, error) {
	token, err := s.store.GetBootstrapTokenByHash(ctx, secrets.Hash(plaintext))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			slog.Warn("Bootstrap redemption with unknown token")
			return nil, ErrBootstrapInvalid
		}
		return nil, fmt.Errorf("failed to look up bootstrap token: %w", err)
	}

	now := time.Now().UTC()
	if token.UsedAt != nil {
		return nil, ErrBootstrapUsed
	}
	if now.After(token.ExpiresAt) {
		return nil, ErrBootstrapExpired
	}

	// Atomic: concurrent redemptions race on this, only one wins.
	if err := s.store.ConsumeBootstrapToken(ctx, token.ID, now); err != nil {
		if errors.Is(err, ErrTokenAlreadyUsed) {
			return nil, ErrBootstrapUsed
		}
		return nil, fmt.Errorf("failed to consume bootstrap token: %w", err)
	}

	keySuffix, err := secrets.Generate(nodeKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}
	nodeSecret, err := secrets.Generate(secrets.DefaultSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate node token: %w", err)
	}
	nodeToken := nodeTokenPrefix + nodeSecret

	if label == "" {
		label = token.Label
	}

	node, err := s.store.CreateNode(ctx, CreateNodeParams{
		StoreID:         token.StoreID,
		Label:           label,
		NodeKey:         nodeKeyPrefix + keySuffix,
		TokenHash:       secrets.Hash(nodeToken),
		SoftwareVersion: softwareVersion,
		Metadata: map[string]interface{}{
			"provisioned_via":    "bootstrap_token",
			"bootstrap_token_id": token.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}

	slog.Info("Node provisioned via bootstrap token",
		"node_id", node.ID,
		"store_id", node.StoreID,
		"token_id", token.ID)

	return &NodeCredentials{
		NodeID:    node.ID,
		StoreID:   node.StoreID,
		NodeKey:   node.NodeKey,
		NodeToken: nodeToken,
	}, nil
}
