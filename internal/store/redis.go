package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polylabs/league-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// leagues and members. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary. Everything
// else passes straight through the embedded Store.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) DeleteLeague(ctx context.Context, id string) error {
	if err := s.Store.DeleteLeague(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, leagueKey(id))
	return nil
}

func (s *CachedStore) UpdateMemberStats(ctx context.Context, id string, stats MemberStats) error {
	if err := s.Store.UpdateMemberStats(ctx, id, stats); err != nil {
		return err
	}
	s.rdb.Del(ctx, memberKey(id))
	return nil
}

func (s *CachedStore) UpdateMemberRank(ctx context.Context, id string, rank int) error {
	if err := s.Store.UpdateMemberRank(ctx, id, rank); err != nil {
		return err
	}
	s.rdb.Del(ctx, memberKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetLeague(ctx context.Context, id string) (*model.League, error) {
	var l model.League
	if s.fromCache(ctx, leagueKey(id), &l) {
		return &l, nil
	}

	league, err := s.Store.GetLeague(ctx, id)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, leagueKey(id), league)
	return league, nil
}

func (s *CachedStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	if s.fromCache(ctx, memberKey(id), &m) {
		return &m, nil
	}

	member, err := s.Store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, memberKey(id), member)
	return member, nil
}

// --- Cache helpers ---

func (s *CachedStore) fromCache(ctx context.Context, key string, out any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (s *CachedStore) toCache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func leagueKey(id string) string { return fmt.Sprintf("league:%s", id) }
func memberKey(id string) string { return fmt.Sprintf("member:%s", id) }
