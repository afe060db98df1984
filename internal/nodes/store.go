package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNodeNotFound     = errors.New("store node not found")
	ErrTokenNotFound    = errors.New("bootstrap token not found")
	ErrTokenAlreadyUsed = errors.New("bootstrap token has already been used")
)

// Store is the persistence surface the node service needs. The Postgres
// implementation below is the production one; tests use an in-memory
// fake.
type Store interface {
	GetNodeByID(ctx context.Context, id string) (*StoreNode, error)
	CreateNode(ctx context.Context, params CreateNodeParams) (*StoreNode, error)
	MarkNodeSeen(ctx context.Context, id string, seenAt time.Time) error

	CreateBootstrapToken(ctx context.Context, params CreateBootstrapTokenParams) (*BootstrapToken, error)
	GetBootstrapTokenByHash(ctx context.Context, tokenHash string) (*BootstrapToken, error)
	ConsumeBootstrapToken(ctx context.Context, id string, usedAt time.Time) error
}

// PostgresStore backs the node and bootstrap-token tables with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetNodeByID(ctx context.Context, id string) (*StoreNode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, store_id, label, node_key, token_hash, status,
		       software_version, metadata, registered_at, last_seen_at
		FROM store_nodes WHERE id = $1`, id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return node, nil
}

func (s *PostgresStore) CreateNode(ctx context.Context, params CreateNodeParams) (*StoreNode, error) {
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO store_nodes (store_id, label, node_key, token_hash, status, software_version, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, store_id, label, node_key, token_hash, status,
		          software_version, metadata, registered_at, last_seen_at`,
		params.StoreID, params.Label, params.NodeKey, params.TokenHash,
		StatusProvisioned, params.SoftwareVersion, metadataJSON)

	node, err := scanNode(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return node, nil
}

func (s *PostgresStore) MarkNodeSeen(ctx context.Context, id string, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE store_nodes SET status = $2, last_seen_at = $3 WHERE id = $1`,
		id, StatusOnline, seenAt)
	if err != nil {
		return fmt.Errorf("failed to mark node seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *PostgresStore) CreateBootstrapToken(ctx context.Context, params CreateBootstrapTokenParams) (*BootstrapToken, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO bootstrap_tokens (store_id, label, token_hash, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, store_id, label, token_hash, expires_at, created_by, created_at, used_at`,
		params.StoreID, params.Label, params.TokenHash, params.ExpiresAt, params.CreatedBy)

	token, err := scanBootstrapToken(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) GetBootstrapTokenByHash(ctx context.Context, tokenHash string) (*BootstrapToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, store_id, label, token_hash, expires_at, created_by, created_at, used_at
		FROM bootstrap_tokens WHERE token_hash = $1`, tokenHash)

	token, err := scanBootstrapToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to query bootstrap token: %w", err)
	}
	return token, nil
}

// ConsumeBootstrapToken marks the token used. The WHERE clause ensures
// concurrent redemptions cannot both succeed.
func (s *PostgresStore) ConsumeBootstrapToken(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bootstrap_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to consume bootstrap token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenAlreadyUsed
	}
	return nil
}

func scanNode(row pgx.Row) (*StoreNode, error) {
	var node StoreNode
	var metadataJSON []byte
	err := row.Scan(&node.ID, &node.StoreID, &node.Label, &node.NodeKey,
		&node.TokenHash, &node.Status, &node.SoftwareVersion,
		&metadataJSON, &node.RegisteredAt, &node.LastSeenAt)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &node.Metadata)
	}
	return &node, nil
}

func scanBootstrapToken(row pgx.Row) (*BootstrapToken, error) {
	var token BootstrapToken
	err := row.Scan(&token.ID, &token.StoreID, &token.Label, &token.TokenHash,
		&token.ExpiresAt, &token.CreatedBy, &token.CreatedAt, &token.UsedAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
