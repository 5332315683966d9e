// Package query serves pool state reads. Reads between actions come from a
// short-lived snapshot cache; every confirmed action replaces the snapshot
// with the outcome's own post-confirmation state, so a caller always sees
// at least the effects of the last confirmed action.
package query

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/orchestrator"
	"github.com/chainclass/defisim/pkg/cache"
)

var log = logrus.WithField("component", "query")

const poolKey = "pool"

// Snapshot is one coherent read of the pool, tagged with the confirmation
// it reflects. Ref is zero for snapshots read outside any action.
type Snapshot struct {
	Ref      common.Hash
	ReserveA *big.Int
	ReserveB *big.Int
	Price    *big.Int
	TakenAt  time.Time
}

// Service answers pool reads from the cache, falling back to the backend.
type Service struct {
	reader chain.Reader
	memo   *cache.Memo[string, Snapshot]
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds the read path. ttl bounds how stale a cached snapshot
// may get between confirmed actions; default 5s.
func NewService(reader chain.Reader, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Service{
		reader: reader,
		memo:   cache.NewMemo[string, Snapshot](ttl),
		ttl:    ttl,
		now:    time.Now,
	}
}

// PoolSnapshot returns the current reserves and price, cached.
func (s *Service) PoolSnapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok := s.memo.Get(poolKey); ok {
		return snap, nil
	}
	return s.refresh(ctx)
}

// UserValue is never cached: it is per-identity and cheap relative to how
// rarely it is asked for.
func (s *Service) UserValue(ctx context.Context, id common.Address) (*big.Int, error) {
	return s.reader.UserValue(ctx, id)
}

// OnOutcome implements orchestrator.Observer. The outcome carries the
// post-confirmation state, which supersedes whatever is cached.
func (s *Service) OnOutcome(out orchestrator.ActionOutcome) {
	if out.Pending || out.ReserveA == nil {
		// Unknown disposition: the cached snapshot can no longer be
		// trusted either, so drop it and let the next read go fresh.
		s.memo.Delete(poolKey)
		return
	}
	s.memo.Set(poolKey, Snapshot{
		Ref:      out.ConfirmationRef,
		ReserveA: out.ReserveA,
		ReserveB: out.ReserveB,
		Price:    out.Price,
		TakenAt:  s.now(),
	}, 0)
}

func (s *Service) refresh(ctx context.Context) (Snapshot, error) {
	a, b, err := s.reader.Reserves(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	price, err := s.reader.Price(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{ReserveA: a, ReserveB: b, Price: price, TakenAt: s.now()}
	s.memo.Set(poolKey, snap, 0)
	log.WithField("price", price.String()).Debug("snapshot refreshed")
	return snap, nil
}
