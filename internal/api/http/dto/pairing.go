package dto

import "time"

// CloudLinkView is the non-secret projection of the stored cloud link.
// The node token never leaves the onsite process through this surface.
type CloudLinkView struct {
	CloudStoreID   string    `json:"cloudStoreId"`
	CloudStoreCode string    `json:"cloudStoreCode"`
	CloudNodeID    string    `json:"cloudNodeId"`
	NodeKey        string    `json:"nodeKey"`
	CloudBaseURL   string    `json:"cloudBaseUrl,omitempty"`
	LinkedAt       time.Time `json:"linkedAt"`
	LinkedBy       string    `json:"linkedBy,omitempty"`
}

type IdentityResponse struct {
	ServerUID     string         `json:"serverUid"`
	Label         string         `json:"label"`
	State         string         `json:"state"`
	ClaimActive   bool           `json:"claimActive"`
	Linked        bool           `json:"linked"`
	CloudLink     *CloudLinkView `json:"cloudLink,omitempty"`
	StoreNameHint string         `json:"storeNameHint,omitempty"`
	AddressHint   string         `json:"addressHint,omitempty"`
	TimezoneHint  string         `json:"timezoneHint,omitempty"`
}

type CreateClaimRequest struct {
	Label            string `json:"label"`
	ExpiresInMinutes int    `json:"expiresInMinutes" binding:"omitempty,min=1,max=60"`
}

type CreateClaimResponse struct {
	ServerUID   string    `json:"serverUid"`
	ServerLabel string    `json:"serverLabel"`
	ClaimID     string    `json:"claimId"`
	ClaimCode   string    `json:"claimCode"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ConsumeClaimRequest struct {
	ClaimID   string `json:"claimId" binding:"required"`
	ClaimCode string `json:"claimCode" binding:"required"`
}

type ConsumeClaimResponse struct {
	ServerUID         string    `json:"serverUid"`
	ServerLabel       string    `json:"serverLabel"`
	StoreNameHint     string    `json:"storeNameHint,omitempty"`
	AddressHint       string    `json:"addressHint,omitempty"`
	TimezoneHint      string    `json:"timezoneHint,omitempty"`
	FinalizeToken     string    `json:"finalizeToken"`
	FinalizeExpiresAt time.Time `json:"finalizeExpiresAt"`
}

type FinalizeRequest struct {
	FinalizeToken  string `json:"finalizeToken" binding:"required"`
	CloudStoreID   string `json:"cloudStoreId" binding:"required"`
	CloudStoreCode string `json:"cloudStoreCode" binding:"required"`
	CloudNodeID    string `json:"cloudNodeId" binding:"required"`
	NodeKey        string `json:"nodeKey" binding:"required"`
	NodeToken      string `json:"nodeToken" binding:"required"`
	CloudBaseURL   string `json:"cloudBaseUrl"`
	LinkedBy       string `json:"linkedBy"`
}

type FinalizeResponse struct {
	OK        bool          `json:"ok"`
	ServerUID string        `json:"serverUid"`
	CloudLink CloudLinkView `json:"cloudLink"`
}

type LinkResponse struct {
	Linked    bool           `json:"linked"`
	CloudLink *CloudLinkView `json:"cloudLink,omitempty"`
}

type HeartbeatRequest struct {
	CloudBaseURL string `json:"cloudBaseUrl"`
}
