package clientsrv

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/iam/secret"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

const (
	clientIDLength     = 24
	clientSecretLength = 48
)

type ClientService struct {
	repo client.Repository
	cost int
}

func NewClientService(repo client.Repository) *ClientService {
	return &ClientService{repo: repo, cost: bcrypt.DefaultCost}
}

// Register creates a client and returns the plaintext secret once. Only the
// bcrypt hash is stored.
func (s *ClientService) Register(ctx context.Context, req client.RegisterClientRequest) (*client.RegisterClientResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id, err := secret.Code(clientIDLength)
	if err != nil {
		return nil, errx.Wrap(err, "failed to generate client id", errx.TypeInternal)
	}
	plain, err := secret.Code(clientSecretLength)
	if err != nil {
		return nil, errx.Wrap(err, "failed to generate client secret", errx.TypeInternal)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return nil, errx.Wrap(err, "failed to hash client secret", errx.TypeInternal)
	}

	grants := req.GrantTypes
	if len(grants) == 0 {
		grants = []string{client.GrantAuthorizationCode, client.GrantRefreshToken}
	}
	clientType := req.ClientType
	if clientType == "" {
		clientType = "confidential"
	}

	now := time.Now().UTC()
	c := client.OAuthClient{
		ID:                      kernel.NewID(),
		ClientID:                kernel.ClientID(id),
		ClientSecretHash:        string(hash),
		ClientName:              req.ClientName,
		ClientType:              clientType,
		RedirectURLs:            req.RedirectURLs,
		PostLogoutRedirectURLs:  nonNil(req.PostLogoutRedirectURLs),
		ResponseTypes:           []string{client.ResponseTypeCode},
		GrantTypes:              grants,
		AllowedOrigins:          nonNil(req.AllowedOrigins),
		Scopes:                  nonNil(req.Scopes),
		TokenEndpointAuthMethod: "client_secret_post",
		SkipAuthorization:       req.SkipAuthorization,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"client_id":   c.ClientID,
		"client_name": c.ClientName,
	}).Info("OAuth client registered")

	return &client.RegisterClientResponse{
		Client:       c,
		ClientSecret: plain,
		Message:      "⚠️ Save this secret securely. It will not be shown again!",
	}, nil
}

func (s *ClientService) GetByClientID(ctx context.Context, clientID kernel.ClientID) (*client.OAuthClient, error) {
	return s.repo.FindByClientID(ctx, clientID)
}

// VerifySecret authenticates a client. Unknown clients and wrong secrets
// produce the same error.
func (s *ClientService) VerifySecret(ctx context.Context, clientID kernel.ClientID, plain string) (*client.OAuthClient, error) {
	c, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		if errx.IsCode(err, client.CodeClientNotFound) {
			return nil, client.ErrInvalidCredentials()
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(c.ClientSecretHash), []byte(plain)) != nil {
		return nil, client.ErrInvalidCredentials()
	}
	return c, nil
}

// Update changes the registered settings of a client.
func (s *ClientService) Update(ctx context.Context, clientID kernel.ClientID, req client.UpdateClientRequest) (*client.OAuthClient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	req.Apply(c)
	c.PostLogoutRedirectURLs = nonNil(c.PostLogoutRedirectURLs)
	c.AllowedOrigins = nonNil(c.AllowedOrigins)
	c.Scopes = nonNil(c.Scopes)
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, *c); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"client_id":          c.ClientID,
		"redirect_urls":      len(c.RedirectURLs),
		"skip_authorization": c.SkipAuthorization,
	}).WithContext(ctx).Info("OAuth client updated")
	return c, nil
}

func (s *ClientService) List(ctx context.Context, opts kernel.PaginationOptions) (*client.ClientPage, error) {
	opts = opts.Normalize()
	clients, total, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	page := kernel.NewPaginated(clients, opts.Page, opts.PageSize, total)
	return &page, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
