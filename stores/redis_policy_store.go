package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/pageguard"
)

// RedisPolicyStore keeps one JSON document per policy plus a set of policy
// ids per resource (key: pageguard:resource:{resourceID}) so resource lookups
// stay a single SMEMBERS away.
type RedisPolicyStore struct {
	client    *redis.Client
	policyFmt string // e.g. "pageguard:policy:%s"
	indexFmt  string // e.g. "pageguard:resource:%s"
}

func NewRedisPolicyStore(client *redis.Client) *RedisPolicyStore {
	return &RedisPolicyStore{
		client:    client,
		policyFmt: "pageguard:policy:%s",
		indexFmt:  "pageguard:resource:%s",
	}
}

func (r *RedisPolicyStore) policyKey(id string) string {
	return fmt.Sprintf(r.policyFmt, id)
}

func (r *RedisPolicyStore) indexKey(resourceID string) string {
	return fmt.Sprintf(r.indexFmt, resourceID)
}

func (r *RedisPolicyStore) SavePolicy(ctx context.Context, p *pageguard.Policy) error {
	if err := validateStrategy(p); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.policyKey(p.ID), b, 0).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.indexKey(p.ResourceID), p.ID).Err()
}

func (r *RedisPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	p, err := r.GetPolicy(ctx, id)
	if err == nil {
		_ = r.client.SRem(ctx, r.indexKey(p.ResourceID), id).Err()
	}
	return r.client.Del(ctx, r.policyKey(id)).Err()
}

func (r *RedisPolicyStore) GetPolicy(ctx context.Context, id string) (*pageguard.Policy, error) {
	raw, err := r.client.Get(ctx, r.policyKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", pageguard.ErrNoPolicy, id)
	}
	if err != nil {
		return nil, err
	}
	p := &pageguard.Policy{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *RedisPolicyStore) GetPoliciesForResource(ctx context.Context, resourceID string) ([]*pageguard.Policy, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey(resourceID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*pageguard.Policy, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetPolicy(ctx, id)
		if err != nil {
			// index may lag a delete; skip stale members
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
