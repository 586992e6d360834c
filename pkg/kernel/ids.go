package kernel

import "github.com/google/uuid"

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// ClientID is the public identifier of a registered OAuth client.
type ClientID string

func (c ClientID) String() string { return string(c) }
func (c ClientID) IsEmpty() bool  { return string(c) == "" }

type OrderID string

func (o OrderID) String() string { return string(o) }
func (o OrderID) IsEmpty() bool  { return string(o) == "" }

type TransactionID string

func (t TransactionID) String() string { return string(t) }
func (t TransactionID) IsEmpty() bool  { return string(t) == "" }

type SubscriptionID string

func (s SubscriptionID) String() string { return string(s) }
func (s SubscriptionID) IsEmpty() bool  { return string(s) == "" }

// NewID returns a random UUIDv4 string used as a primary key.
func NewID() string {
	return uuid.NewString()
}
