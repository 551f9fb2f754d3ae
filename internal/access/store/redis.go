package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	id "fhevault/pkg/domain"
)

// RedisStore keeps each record's ACL in a Redis set, letting several vault
// instances share one authorization view.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func aclKey(recordID id.RecordID) string {
	return "fhevault:acl:" + recordID.String()
}

func (s *RedisStore) Add(ctx context.Context, recordID id.RecordID, addr id.Address) error {
	if err := s.client.SAdd(ctx, aclKey(recordID), addr.String()).Err(); err != nil {
		return fmt.Errorf("acl add: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, recordID id.RecordID, addr id.Address) error {
	if err := s.client.SRem(ctx, aclKey(recordID), addr.String()).Err(); err != nil {
		return fmt.Errorf("acl remove: %w", err)
	}
	return nil
}

func (s *RedisStore) Contains(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error) {
	member, err := s.client.SIsMember(ctx, aclKey(recordID), addr.String()).Result()
	if err != nil {
		return false, fmt.Errorf("acl membership: %w", err)
	}
	return member, nil
}

func (s *RedisStore) List(ctx context.Context, recordID id.RecordID) ([]id.Address, error) {
	raw, err := s.client.SMembers(ctx, aclKey(recordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("acl list: %w", err)
	}
	sort.Strings(raw)
	members := make([]id.Address, len(raw))
	for i, m := range raw {
		members[i] = id.Address(m)
	}
	return members, nil
}

func (s *RedisStore) RemoveAll(ctx context.Context, recordID id.RecordID) error {
	if err := s.client.Del(ctx, aclKey(recordID)).Err(); err != nil {
		return fmt.Errorf("acl purge: %w", err)
	}
	return nil
}
