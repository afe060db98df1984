package dto

import "time"

// NodeResponse is the authenticated node descriptor returned to a node
// whose credentials were accepted.
type NodeResponse struct {
	ID              string                 `json:"id"`
	StoreID         string                 `json:"storeId"`
	Label           string                 `json:"label"`
	Status          string                 `json:"status"`
	SoftwareVersion string                 `json:"softwareVersion,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	LastSeenAt      *time.Time             `json:"lastSeenAt,omitempty"`
}

type RegisterNodeRequest struct {
	BootstrapToken  string `json:"bootstrapToken" binding:"required"`
	Label           string `json:"label"`
	SoftwareVersion string `json:"softwareVersion"`
}

type RegisterNodeResponse struct {
	NodeID    string `json:"nodeId"`
	StoreID   string `json:"storeId"`
	NodeKey   string `json:"nodeKey"`
	NodeToken string `json:"nodeToken"`
}

type CreateBootstrapTokenRequest struct {
	Label            string `json:"label"`
	ExpiresInMinutes int    `json:"expiresInMinutes" binding:"omitempty,min=1,max=1440"`
	IssuedBy         string `json:"issuedBy"`
}

type CreateBootstrapTokenResponse struct {
	TokenID        string    `json:"tokenId"`
	BootstrapToken string    `json:"bootstrapToken"`
	StoreID        string    `json:"storeId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}
