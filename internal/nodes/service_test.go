package nodes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigadepos/edgelink/internal/secrets"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu     sync.Mutex
	nodes  map[string]*StoreNode
	tokens map[string]*BootstrapToken
}

func newMemStore() *memStore {
	return &memStore{
		nodes:  make(map[string]*StoreNode),
		tokens: make(map[string]*BootstrapToken),
	}
}

func (m *memStore) GetNodeByID(_ context.Context, id string) (*StoreNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	copied := *node
	return &copied, nil
}

func (m *memStore) CreateNode(_ context.Context, params CreateNodeParams) (*StoreNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node := &StoreNode{
		ID:              uuid.NewString(),
		StoreID:         params.StoreID,
		Label:           params.Label,
		NodeKey:         params.NodeKey,
		TokenHash:       params.TokenHash,
		Status:          StatusProvisioned,
		SoftwareVersion: params.SoftwareVersion,
		Metadata:        params.Metadata,
		RegisteredAt:    time.Now().UTC(),
	}
	m.nodes[node.ID] = node
	copied := *node
	return &copied, nil
}

func (m *memStore) MarkNodeSeen(_ context.Context, id string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	node.Status = StatusOnline
	node.LastSeenAt = &seenAt
	return nil
}

func (m *memStore) CreateBootstrapToken(_ context.Context, params CreateBootstrapTokenParams) (*BootstrapToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := &BootstrapToken{
		ID:        uuid.NewString(),
		StoreID:   params.StoreID,
		Label:     params.Label,
		TokenHash: params.TokenHash,
		ExpiresAt: params.ExpiresAt,
		CreatedBy: params.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	m.tokens[token.ID] = token
	copied := *token
	return &copied, nil
}

func (m *memStore) GetBootstrapTokenByHash(_ context.Context, tokenHash string) (*BootstrapToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.TokenHash == tokenHash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (m *memStore) ConsumeBootstrapToken(_ context.Context, id string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok || token.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}
	token.UsedAt = &usedAt
	return nil
}

func provisionTestNode(t *testing.T, store *memStore) (*StoreNode, string) {
	t.Helper()
	token := "ntk_test_secret"
	node, err := store.CreateNode(context.Background(), CreateNodeParams{
		StoreID:   "store-1",
		Label:     "Main Counter",
		NodeKey:   "nk_test",
		TokenHash: secrets.Hash(token),
	})
	require.NoError(t, err)
	return node, token
}

func TestAuthenticate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	node, token := provisionTestNode(t, store)

	result, err := svc.Authenticate(context.Background(), node.ID, token)
	require.NoError(t, err)

	assert.Equal(t, node.ID, result.ID)
	assert.Equal(t, "store-1", result.StoreID)
	assert.Equal(t, StatusOnline, result.Status)
	require.NotNil(t, result.LastSeenAt)
	assert.WithinDuration(t, time.Now(), *result.LastSeenAt, 5*time.Second)
}

func TestAuthenticateUpdatesLiveness(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	node, token := provisionTestNode(t, store)

	_, err := svc.Authenticate(context.Background(), node.ID, token)
	require.NoError(t, err)

	stored, err := store.GetNodeByID(context.Background(), node.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, stored.Status)
	assert.NotNil(t, stored.LastSeenAt)
}

func TestAuthenticateBadTokenAndUnknownNodeIndistinguishable(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	node, _ := provisionTestNode(t, store)

	_, badTokenErr := svc.Authenticate(context.Background(), node.ID, "ntk_tampered")
	_, unknownNodeErr := svc.Authenticate(context.Background(), uuid.NewString(), "ntk_whatever")

	assert.ErrorIs(t, badTokenErr, ErrInvalidNodeCredentials)
	assert.ErrorIs(t, unknownNodeErr, ErrInvalidNodeCredentials)
	assert.Equal(t, badTokenErr.Error(), unknownNodeErr.Error())
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	svc := NewService(newMemStore())

	_, err := svc.Authenticate(context.Background(), "", "token")
	assert.ErrorIs(t, err, ErrInvalidNodeCredentials)

	_, err = svc.Authenticate(context.Background(), "node", "")
	assert.ErrorIs(t, err, ErrInvalidNodeCredentials)
}

func TestIssueBootstrapToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	result, err := svc.IssueBootstrapToken(context.Background(), "store-1", "new terminal", 0, "admin@example.com")
	require.NoError(t, err)

	assert.Contains(t, result.Plaintext, "btk_")
	assert.Equal(t, secrets.Hash(result.Plaintext), result.Token.TokenHash)
	assert.WithinDuration(t, time.Now().Add(DefaultBootstrapTTL), result.Token.ExpiresAt, 5*time.Second)
}

func TestIssueBootstrapTokenCapsTTL(t *testing.T) {
	svc := NewService(newMemStore())

	result, err := svc.IssueBootstrapToken(context.Background(), "store-1", "", 100*time.Hour, "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(MaxBootstrapTTL), result.Token.ExpiresAt, 5*time.Second)
}

func TestRedeemBootstrapToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()

	issued, err := svc.IssueBootstrapToken(ctx, "store-1", "new terminal", 0, "admin")
	require.NoError(t, err)

	creds, err := svc.RedeemBootstrapToken(ctx, issued.Plaintext, "", "2.4.0")
	require.NoError(t, err)

	assert.Equal(t, "store-1", creds.StoreID)
	assert.Contains(t, creds.NodeKey, "nk_")
	assert.Contains(t, creds.NodeToken, "ntk_")

	// The credentials authenticate against the new node.
	node, err := svc.Authenticate(ctx, creds.NodeID, creds.NodeToken)
	require.NoError(t, err)
	assert.Equal(t, "new terminal", node.Label)
	assert.Equal(t, "2.4.0", node.SoftwareVersion)
}

func TestRedeemBootstrapTokenExactlyOnce(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	issued, err := svc.IssueBootstrapToken(ctx, "store-1", "", 0, "admin")
	require.NoError(t, err)

	_, err = svc.RedeemBootstrapToken(ctx, issued.Plaintext, "", "")
	require.NoError(t, err)

	_, err = svc.RedeemBootstrapToken(ctx, issued.Plaintext, "", "")
	assert.ErrorIs(t, err, ErrBootstrapUsed)
}

func TestRedeemBootstrapTokenExpired(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()

	plaintext := "btk_expired_secret"
	_, err := store.CreateBootstrapToken(ctx, CreateBootstrapTokenParams{
		StoreID:   "store-1",
		TokenHash: secrets.Hash(plaintext),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	_, err = svc.RedeemBootstrapToken(ctx, plaintext, "", "")
	assert.ErrorIs(t, err, ErrBootstrapExpired)
}

func TestRedeemBootstrapTokenUnknown(t *testing.T) {
	svc := NewService(newMemStore())

	_, err := svc.RedeemBootstrapToken(context.Background(), "btk_nope", "", "")
	assert.ErrorIs(t, err, ErrBootstrapInvalid)
}
