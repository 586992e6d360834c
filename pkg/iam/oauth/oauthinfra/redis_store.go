package oauthinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
)

const (
	flowPrefix = "oauth:flow:"
	codePrefix = "oauth:code:"
)

// RedisStateStore keeps pending authorizations as JSON values with native
// TTLs. Codes are indexed separately so the token endpoint can find a flow
// by code alone.
type RedisStateStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewRedisStateStore(client redis.UniversalClient, retention time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, retention: retention}
}

func (s *RedisStateStore) Save(ctx context.Context, p *oauth.PendingAuthorization) error {
	data, err := json.Marshal(p)
	if err != nil {
		return oauth.ErrStoreUnavailable(err)
	}
	ttl := recordTTL(p.ExpiresAt, s.retention)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, flowPrefix+p.FlowID, data, ttl)
	if p.AuthCode != "" {
		pipe.Set(ctx, codePrefix+p.AuthCode, p.FlowID, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return oauth.ErrStoreUnavailable(err).WithDetail("flow_id", p.FlowID)
	}
	return nil
}

func (s *RedisStateStore) Get(ctx context.Context, flowID string) (*oauth.PendingAuthorization, error) {
	data, err := s.client.Get(ctx, flowPrefix+flowID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oauth.ErrFlowNotFound(flowID)
		}
		return nil, oauth.ErrStoreUnavailable(err).WithDetail("flow_id", flowID)
	}
	var p oauth.PendingAuthorization
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, oauth.ErrStoreUnavailable(err).WithDetail("flow_id", flowID)
	}
	return &p, nil
}

func (s *RedisStateStore) FindByCode(ctx context.Context, code string) (*oauth.PendingAuthorization, error) {
	flowID, err := s.client.Get(ctx, codePrefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oauth.ErrFlowNotFound("")
		}
		return nil, oauth.ErrStoreUnavailable(err)
	}
	p, err := s.Get(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if p.AuthCode != code {
		return nil, oauth.ErrFlowNotFound(flowID)
	}
	return p, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, flowID string) error {
	_, err := s.remove(ctx, flowID)
	return err
}

// Consume relies on DEL reporting how many keys it removed: exactly one
// caller observes 1.
func (s *RedisStateStore) Consume(ctx context.Context, flowID string) (bool, error) {
	n, err := s.remove(ctx, flowID)
	return n == 1, err
}

func (s *RedisStateStore) remove(ctx context.Context, flowID string) (int64, error) {
	p, err := s.Get(ctx, flowID)
	if err != nil {
		if errx.IsCode(err, oauth.CodeFlowNotFound) {
			return 0, nil
		}
		return 0, err
	}

	n, err := s.client.Del(ctx, flowPrefix+flowID).Result()
	if err != nil {
		return 0, oauth.ErrStoreUnavailable(err).WithDetail("flow_id", flowID)
	}
	if p.AuthCode != "" {
		if err := s.client.Del(ctx, codePrefix+p.AuthCode).Err(); err != nil {
			return n, oauth.ErrStoreUnavailable(err).WithDetail("flow_id", flowID)
		}
	}
	return n, nil
}

func recordTTL(expiresAt time.Time, retention time.Duration) time.Duration {
	ttl := time.Until(expiresAt) + retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
