package clientinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/client"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

type PostgresClientRepository struct {
	db *sqlx.DB
}

func NewPostgresClientRepository(db *sqlx.DB) *PostgresClientRepository {
	return &PostgresClientRepository{db: db}
}

const clientColumns = `
	id, client_id, client_secret_hash, client_name, client_type, redirect_urls,
	post_logout_redirect_urls, response_types, grant_types, allowed_origins,
	scopes, token_endpoint_auth_method, skip_authorization, created_at, updated_at`

// Save inserts the client, or updates everything but the identifiers.
func (r *PostgresClientRepository) Save(ctx context.Context, c client.OAuthClient) error {
	query := `
		INSERT INTO oauth_clients (` + clientColumns + `
		) VALUES (
			:id, :client_id, :client_secret_hash, :client_name, :client_type, :redirect_urls,
			:post_logout_redirect_urls, :response_types, :grant_types, :allowed_origins,
			:scopes, :token_endpoint_auth_method, :skip_authorization, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			client_secret_hash = EXCLUDED.client_secret_hash,
			client_name = EXCLUDED.client_name,
			redirect_urls = EXCLUDED.redirect_urls,
			post_logout_redirect_urls = EXCLUDED.post_logout_redirect_urls,
			response_types = EXCLUDED.response_types,
			grant_types = EXCLUDED.grant_types,
			allowed_origins = EXCLUDED.allowed_origins,
			scopes = EXCLUDED.scopes,
			skip_authorization = EXCLUDED.skip_authorization,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, toPersistence(c))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation on client_id
			return client.ErrClientAlreadyExists().WithDetail("client_id", c.ClientID.String())
		}
		return errx.Wrap(err, "failed to save OAuth client", errx.TypeInternal).
			WithDetail("client_id", c.ClientID.String())
	}
	return nil
}

func (r *PostgresClientRepository) FindByClientID(ctx context.Context, clientID kernel.ClientID) (*client.OAuthClient, error) {
	var p clientPersistence
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE client_id = $1`
	if err := r.db.GetContext(ctx, &p, query, clientID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, client.ErrClientNotFound(clientID)
		}
		return nil, errx.Wrap(err, "failed to find OAuth client", errx.TypeInternal).
			WithDetail("client_id", clientID.String())
	}
	c := toDomain(p)
	return &c, nil
}

func (r *PostgresClientRepository) List(ctx context.Context, opts kernel.PaginationOptions) ([]*client.OAuthClient, int, error) {
	opts = opts.Normalize()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM oauth_clients`); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count OAuth clients", errx.TypeInternal)
	}
	var rows []clientPersistence
	query := `SELECT ` + clientColumns + ` FROM oauth_clients ORDER BY created_at, client_id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, opts.PageSize, opts.Offset()); err != nil {
		return nil, 0, errx.Wrap(err, "failed to list OAuth clients", errx.TypeInternal)
	}
	out := make([]*client.OAuthClient, len(rows))
	for i, p := range rows {
		c := toDomain(p)
		out[i] = &c
	}
	return out, total, nil
}

// clientPersistence maps array columns through pq.StringArray.
type clientPersistence struct {
	ID                      string         `db:"id"`
	ClientID                string         `db:"client_id"`
	ClientSecretHash        string         `db:"client_secret_hash"`
	ClientName              string         `db:"client_name"`
	ClientType              string         `db:"client_type"`
	RedirectURLs            pq.StringArray `db:"redirect_urls"`
	PostLogoutRedirectURLs  pq.StringArray `db:"post_logout_redirect_urls"`
	ResponseTypes           pq.StringArray `db:"response_types"`
	GrantTypes              pq.StringArray `db:"grant_types"`
	AllowedOrigins          pq.StringArray `db:"allowed_origins"`
	Scopes                  pq.StringArray `db:"scopes"`
	TokenEndpointAuthMethod string         `db:"token_endpoint_auth_method"`
	SkipAuthorization       bool           `db:"skip_authorization"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

func toPersistence(c client.OAuthClient) clientPersistence {
	return clientPersistence{
		ID:                      c.ID,
		ClientID:                c.ClientID.String(),
		ClientSecretHash:        c.ClientSecretHash,
		ClientName:              c.ClientName,
		ClientType:              c.ClientType,
		RedirectURLs:            c.RedirectURLs,
		PostLogoutRedirectURLs:  c.PostLogoutRedirectURLs,
		ResponseTypes:           c.ResponseTypes,
		GrantTypes:              c.GrantTypes,
		AllowedOrigins:          c.AllowedOrigins,
		Scopes:                  c.Scopes,
		TokenEndpointAuthMethod: c.TokenEndpointAuthMethod,
		SkipAuthorization:       c.SkipAuthorization,
		CreatedAt:               c.CreatedAt,
		UpdatedAt:               c.UpdatedAt,
	}
}

func toDomain(p clientPersistence) client.OAuthClient {
	return client.OAuthClient{
		ID:                      p.ID,
		ClientID:                kernel.ClientID(p.ClientID),
		ClientSecretHash:        p.ClientSecretHash,
		ClientName:              p.ClientName,
		ClientType:              p.ClientType,
		RedirectURLs:            p.RedirectURLs,
		PostLogoutRedirectURLs:  p.PostLogoutRedirectURLs,
		ResponseTypes:           p.ResponseTypes,
		GrantTypes:              p.GrantTypes,
		AllowedOrigins:          p.AllowedOrigins,
		Scopes:                  p.Scopes,
		TokenEndpointAuthMethod: p.TokenEndpointAuthMethod,
		SkipAuthorization:       p.SkipAuthorization,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}
