package oauth

import (
	"context"

	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

// StateStore holds pending authorizations. Records outlive their ExpiresAt
// by a retention window so an expired attempt can be told apart from an
// unknown one.
type StateStore interface {
	Save(ctx context.Context, p *PendingAuthorization) error
	// Get returns ErrFlowNotFound for unknown or evicted flows.
	Get(ctx context.Context, flowID string) (*PendingAuthorization, error)
	FindByCode(ctx context.Context, code string) (*PendingAuthorization, error)
	Delete(ctx context.Context, flowID string) error
	// Consume removes the record; only one concurrent caller gets true.
	Consume(ctx context.Context, flowID string) (bool, error)
}

// ClientDirectory is the read side of the client registry.
type ClientDirectory interface {
	GetByClientID(ctx context.Context, clientID kernel.ClientID) (*client.OAuthClient, error)
	VerifySecret(ctx context.Context, clientID kernel.ClientID, secret string) (*client.OAuthClient, error)
}
