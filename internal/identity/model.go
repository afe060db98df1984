package identity

import (
	"fmt"
	"time"
)

// PairingState tracks how far an installation has progressed through the
// cloud pairing handshake. Each state names exactly which sub-records
// are expected to be present.
type PairingState string

const (
	StateUnclaimed     PairingState = "unclaimed"
	StateClaimIssued   PairingState = "claim_issued"
	StateClaimConsumed PairingState = "claim_consumed"
	StateLinked        PairingState = "linked"
)

// Identity is the singleton per-installation record. ServerUID is
// generated once with crypto randomness and never regenerated.
type Identity struct {
	ServerUID string       `json:"serverUid"`
	Label     string       `json:"label"`
	State     PairingState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	Claim    *ClaimRecord    `json:"claim,omitempty"`
	Finalize *FinalizeRecord `json:"finalize,omitempty"`
	Link     *CloudLink      `json:"cloudLink,omitempty"`
}

// ClaimRecord holds the hashed first-stage pairing credential. The
// plaintext code is only observable at issue time.
type ClaimRecord struct {
	ID        string     `json:"id"`
	CodeHash  string     `json:"codeHash"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	IssuedBy  string     `json:"issuedBy,omitempty"`
}

// FinalizeRecord holds the hashed second-stage token minted by a
// successful claim consumption.
type FinalizeRecord struct {
	TokenHash string     `json:"tokenHash"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// CloudLink is the realized pairing. NodeToken is stored raw because the
// onsite side must present it outward on every authenticated call.
type CloudLink struct {
	CloudStoreID   string    `json:"cloudStoreId"`
	CloudStoreCode string    `json:"cloudStoreCode"`
	CloudNodeID    string    `json:"cloudNodeId"`
	NodeKey        string    `json:"nodeKey"`
	NodeToken      string    `json:"nodeToken"`
	CloudBaseURL   string    `json:"cloudBaseUrl,omitempty"`
	LinkedAt       time.Time `json:"linkedAt"`
	LinkedBy       string    `json:"linkedBy,omitempty"`
}

func (r *ClaimRecord) Used() bool    { return r.UsedAt != nil }
func (r *FinalizeRecord) Used() bool { return r.UsedAt != nil }

func (r *ClaimRecord) Expired(now time.Time) bool    { return now.After(r.ExpiresAt) }
func (r *FinalizeRecord) Expired(now time.Time) bool { return now.After(r.ExpiresAt) }

// Linked reports whether the installation holds a cloud link.
func (id *Identity) Linked() bool {
	return id.State == StateLinked && id.Link != nil
}

// validate enforces the state/sub-record correspondence once, at the
// storage boundary, so business logic never needs presence checks.
func (id *Identity) validate() error {
	if id.ServerUID == "" {
		return fmt.Errorf("identity has no serverUid")
	}
	switch id.State {
	case StateUnclaimed:
		if id.Claim != nil || id.Finalize != nil {
			return fmt.Errorf("unclaimed identity carries pairing records")
		}
	case StateClaimIssued:
		if id.Claim == nil {
			return fmt.Errorf("claim_issued identity has no claim record")
		}
		if id.Claim.Used() {
			return fmt.Errorf("claim_issued identity has a consumed claim")
		}
	case StateClaimConsumed:
		if id.Claim == nil || !id.Claim.Used() {
			return fmt.Errorf("claim_consumed identity has no consumed claim")
		}
		if id.Finalize == nil {
			return fmt.Errorf("claim_consumed identity has no finalize record")
		}
	case StateLinked:
		if id.Link == nil {
			return fmt.Errorf("linked identity has no cloud link")
		}
	default:
		return fmt.Errorf("unknown pairing state %q", id.State)
	}
	return nil
}
