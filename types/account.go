package types

import "time"

// AccountStatus is the lifecycle state of a managed account.
type AccountStatus string

// Supported account statuses.
const (
	AccountPending   AccountStatus = "pending"
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountCompleted AccountStatus = "completed"
)

// AccountStatuses lists every valid account status.
var AccountStatuses = []AccountStatus{AccountPending, AccountActive, AccountSuspended, AccountCompleted}

// Valid reports whether s is one of the known account statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountPending, AccountActive, AccountSuspended, AccountCompleted:
		return true
	default:
		return false
	}
}

// ManagedAccount represents a third-party account submitted by an owner for
// management. Its access credentials are stored encrypted.
type ManagedAccount struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// OwnerID references the user who submitted the account. It never changes.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// ManagerID references the assigned manager, or nil when unassigned.
	ManagerID *int `json:"manager_id" db:"manager_id"`

	// AccountType is a free-form label such as "instagram" or "shopify".
	AccountType string `json:"account_type" db:"account_type"`

	// Credentials holds the decrypted credentials on single-record reads.
	// List projections leave it unset, and the key is omitted from JSON.
	Credentials *Credentials `json:"credentials,omitempty" db:"-"`

	// EncryptedCredentials is the opaque ciphertext as persisted.
	EncryptedCredentials *string `json:"-" db:"credentials"`

	// Status is the lifecycle state of the account.
	Status AccountStatus `json:"status" db:"status"`

	// ManagementInstructions is free text from the owner to the manager.
	ManagementInstructions string `json:"management_instructions" db:"management_instructions"`

	// CreatedAt is the timestamp when the account was submitted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Credentials wraps a decrypted credential value. Value is whatever the owner
// submitted (usually a JSON object); a nil Value means the stored blob could
// not be decrypted and is rendered as JSON null.
type Credentials struct {
	Value any
}

// MarshalJSON renders the wrapped value directly.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return marshalAny(c.Value)
}

// AccountUpdate is a partial update of a managed account.
// Nil fields are left unchanged. Credentials carries plain-text structured
// data; it is encrypted before persistence.
type AccountUpdate struct {
	AccountType            *string        `json:"account_type,omitempty"`
	Credentials            any            `json:"credentials,omitempty"`
	Status                 *AccountStatus `json:"status,omitempty"`
	ManagementInstructions *string        `json:"management_instructions,omitempty"`
	ManagerID              *int           `json:"manager_id,omitempty"`
}

// Empty reports whether the update touches no field.
func (u AccountUpdate) Empty() bool {
	return u.AccountType == nil && u.Credentials == nil && u.Status == nil &&
		u.ManagementInstructions == nil && u.ManagerID == nil
}

// AccountChanges is the persistence-level form of AccountUpdate, with
// credentials already encrypted. ClearManager unassigns the manager and
// takes precedence over ManagerID.
type AccountChanges struct {
	AccountType            *string
	EncryptedCredentials   *string
	Status                 *AccountStatus
	ManagementInstructions *string
	ManagerID              *int
	ClearManager           bool
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Status      *AccountStatus
	AccountType *string
	Limit       int
	Offset      int
}
