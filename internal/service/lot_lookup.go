package service

import (
	"context"
	"encoding/json"
	"time"

	"traceability/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ResolvedLot is the immutable part of a lot a recall needs to start from.
type ResolvedLot struct {
	ID         uuid.UUID `json:"id"`
	LotNumber  string    `json:"lot_number"`
	MaterialID uuid.UUID `json:"material_id"`
}

// LotLookup resolves business lot numbers to lots.
type LotLookup interface {
	// Resolve returns the lots found, keyed by lot number. Numbers that do
	// not exist in the tenant are simply absent.
	Resolve(ctx context.Context, orgID uuid.UUID, lotNumbers []string) (map[string]ResolvedLot, error)
}

// lotLookup is a read-through Redis cache in front of the lot repository.
// A lot number never changes owner once assigned, so positive answers are
// safe to cache; misses are never cached.
type lotLookup struct {
	repo repository.LotRepository
	rdb  *redis.Client
	ttl  time.Duration
}

// NewLotLookup accepts a nil rdb, in which case every call goes to the database.
func NewLotLookup(repo repository.LotRepository, rdb *redis.Client, ttl time.Duration) LotLookup {
	return &lotLookup{repo: repo, rdb: rdb, ttl: ttl}
}

func lotCacheKey(orgID uuid.UUID, lotNumber string) string {
	return "lotnum:" + orgID.String() + ":" + lotNumber
}

func (l *lotLookup) Resolve(ctx context.Context, orgID uuid.UUID, lotNumbers []string) (map[string]ResolvedLot, error) {
	out := make(map[string]ResolvedLot, len(lotNumbers))
	misses := lotNumbers

	// 1. Try Redis, one round trip for all numbers
	if l.rdb != nil && len(lotNumbers) > 0 {
		keys := make([]string, len(lotNumbers))
		for i, n := range lotNumbers {
			keys[i] = lotCacheKey(orgID, n)
		}
		vals, err := l.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			log.Warn().Err(err).Msg("lot lookup cache unavailable, falling back to database")
		} else {
			misses = nil
			for i, v := range vals {
				s, ok := v.(string)
				var lot ResolvedLot
				if ok && json.Unmarshal([]byte(s), &lot) == nil {
					out[lotNumbers[i]] = lot
					continue
				}
				misses = append(misses, lotNumbers[i])
			}
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	// 2. Cache miss: query DB
	lots, err := l.repo.FindByLotNumbers(ctx, orgID, misses)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string]ResolvedLot, len(lots))
	for _, lot := range lots {
		r := ResolvedLot{ID: lot.ID, LotNumber: lot.LotNumber, MaterialID: lot.MaterialID}
		out[lot.LotNumber] = r
		fresh[lot.LotNumber] = r
	}

	// 3. Populate cache, best effort
	if l.rdb != nil && len(fresh) > 0 {
		pipe := l.rdb.Pipeline()
		for n, r := range fresh {
			if b, err := json.Marshal(r); err == nil {
				pipe.Set(context.Background(), lotCacheKey(orgID, n), b, l.ttl)
			}
		}
		_, _ = pipe.Exec(context.Background())
	}
	return out, nil
}
