package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
)

// stubTier 可编程的存储层桩
type stubTier struct {
	snapshots map[string]*domain.PortfolioSnapshot
	metas     map[string]*domain.CachedPortfolioMeta
	getErr    error
	saveErr   error
	saves     int
}

func newStubTier() *stubTier {
	return &stubTier{
		snapshots: make(map[string]*domain.PortfolioSnapshot),
		metas:     make(map[string]*domain.CachedPortfolioMeta),
	}
}

func (s *stubTier) GetSnapshot(ctx context.Context, id string) (*domain.PortfolioSnapshot, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.snapshots[id], nil
}

func (s *stubTier) SaveSnapshot(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[snapshot.PortfolioID] = snapshot
	return nil
}

func (s *stubTier) GetMeta(ctx context.Context, id string) (*domain.CachedPortfolioMeta, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.metas[id], nil
}

func (s *stubTier) SaveMeta(ctx context.Context, meta *domain.CachedPortfolioMeta) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.metas[meta.PortfolioID] = meta
	return nil
}

func (s *stubTier) DeleteMeta(ctx context.Context, id string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	delete(s.metas, id)
	return nil
}

func sampleSnapshot(id string) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		PortfolioID: id,
		TotalValue:  decimal.NewFromInt(1500),
		UpdatedAt:   time.Now(),
	}
}

func TestGetFastHit(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	fast.snapshots["p1"] = sampleSnapshot("p1")
	c := NewTieredSnapshotCache(fast, durable, nil)

	got, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, durable.saves)
}

func TestGetDurableHitBackfillsFast(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	durable.snapshots["p1"] = sampleSnapshot("p1")
	c := NewTieredSnapshotCache(fast, durable, nil)

	got, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, fast.snapshots["p1"], "持久层命中应回填快速层")
}

func TestGetFastOutageDegrades(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	fast.getErr = errors.New("connection refused")
	durable.snapshots["p1"] = sampleSnapshot("p1")
	c := NewTieredSnapshotCache(fast, durable, nil)

	got, err := c.Get(context.Background(), "p1")
	require.NoError(t, err, "快速层故障应被吞掉")
	require.NotNil(t, got)
}

func TestGetBothMiss(t *testing.T) {
	c := NewTieredSnapshotCache(newStubTier(), newStubTier(), nil)

	got, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetDurableErrorReadsAsNoData(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	durable.getErr = errors.New("mysql down")
	c := NewTieredSnapshotCache(fast, durable, nil)

	got, err := c.Get(context.Background(), "p1")
	require.NoError(t, err, "读路径对调用方永远可用")
	assert.Nil(t, got)
}

func TestPutWritesBothTiers(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	c := NewTieredSnapshotCache(fast, durable, nil)

	require.NoError(t, c.Put(context.Background(), sampleSnapshot("p1")))
	assert.NotNil(t, durable.snapshots["p1"])
	assert.NotNil(t, fast.snapshots["p1"])
}

func TestPutDurableFailureSurfaces(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	durable.saveErr = errors.New("mysql down")
	c := NewTieredSnapshotCache(fast, durable, nil)

	err := c.Put(context.Background(), sampleSnapshot("p1"))
	require.Error(t, err, "持久层写入失败必须上抛，调度方据此重试")
	assert.Equal(t, 0, fast.saves, "持久层失败后不应再写快速层")
}

func TestPutFastFailureSwallowed(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	fast.saveErr = errors.New("connection refused")
	c := NewTieredSnapshotCache(fast, durable, nil)

	require.NoError(t, c.Put(context.Background(), sampleSnapshot("p1")))
	assert.NotNil(t, durable.snapshots["p1"])
}

func TestMetaBestEffort(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	c := NewTieredSnapshotCache(fast, durable, nil)
	ctx := context.Background()

	meta := &domain.CachedPortfolioMeta{PortfolioID: "p1", DisplayName: "Retirement"}
	c.PutMeta(ctx, meta)

	got, err := c.GetMeta(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Retirement", got.DisplayName)

	c.InvalidateMeta(ctx, "p1")
	got, err = c.GetMeta(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetaErrorsSwallowed(t *testing.T) {
	fast, durable := newStubTier(), newStubTier()
	fast.getErr = errors.New("connection refused")
	fast.saveErr = errors.New("connection refused")
	c := NewTieredSnapshotCache(fast, durable, nil)
	ctx := context.Background()

	c.PutMeta(ctx, &domain.CachedPortfolioMeta{PortfolioID: "p1"})
	c.InvalidateMeta(ctx, "p1")
	got, err := c.GetMeta(ctx, "p1")
	require.NoError(t, err, "元信息故障一律吞掉")
	assert.Nil(t, got)
}
