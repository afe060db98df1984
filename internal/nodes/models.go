package nodes

import (
	"time"
)

// Node statuses. Only "online" is written by this subsystem; deriving
// stale/offline from elapsed time is a read-side concern elsewhere.
const (
	StatusProvisioned = "provisioned"
	StatusOnline      = "online"
)

// StoreNode is the cloud-side record of one onsite server's relationship
// to a store. TokenHash is all the cloud ever keeps of the node secret.
type StoreNode struct {
	ID              string
	StoreID         string
	Label           string
	NodeKey         string
	TokenHash       string
	Status          string
	SoftwareVersion string
	Metadata        map[string]interface{}
	RegisteredAt    time.Time
	LastSeenAt      *time.Time
}

// BootstrapToken is the administrator-issued, one-time alternative to
// the interactive claim/finalize handshake.
type BootstrapToken struct {
	ID        string
	StoreID   string
	Label     string
	TokenHash string
	ExpiresAt time.Time
	CreatedBy string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// NodeCredentials is returned exactly once, when a node is provisioned.
type NodeCredentials struct {
	NodeID    string
	StoreID   string
	NodeKey   string
	NodeToken string
}

type CreateNodeParams struct {
	StoreID         string
	Label           string
	NodeKey         string
	TokenHash       string
	SoftwareVersion string
	Metadata        map[string]interface{}
}

type CreateBootstrapTokenParams struct {
	StoreID   string
	Label     string
	TokenHash string
	ExpiresAt time.Time
	CreatedBy string
}
