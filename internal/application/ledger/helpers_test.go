package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/infrastructure/persistence/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 9, 2, 9, 30, 0, 0, time.UTC)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// MockLocker is a mock implementation of shared.Locker
type MockLocker struct {
	mock.Mock
	released int
}

func (m *MockLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, key, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

// recordingMetrics counts command outcomes
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int)}
}

func (r *recordingMetrics) RecordCommand(_ context.Context, command, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[command+"/"+outcome]++
}

func (r *recordingMetrics) RecordConflictRetry(context.Context, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

// conflictingScope loses the optimistic-lock race a fixed number of times before delegating
type conflictingScope struct {
	inner     appledger.TransactionScope
	conflicts int
	calls     int
}

func (s *conflictingScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	s.calls++
	if s.calls <= s.conflicts {
		return s.inner.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
			if err := fn(repos); err != nil {
				return err
			}
			return shared.ErrConcurrencyConflict
		})
	}
	return s.inner.Execute(ctx, fn)
}

type fixture struct {
	store       *memory.Store
	ids         shared.IDGenerator
	clock       *shared.FixedClock
	events      *MockEventPublisher
	runs        *appledger.ProductionRunService
	allocations *appledger.AllocationService
	sales       *appledger.SaleService
	returns     *appledger.ReturnService
	queries     *appledger.QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithScope(t, nil)
}

func newFixtureWithScope(t *testing.T, wrap func(appledger.TransactionScope) appledger.TransactionScope) *fixture {
	t.Helper()
	store := memory.NewStore()
	var scope appledger.TransactionScope = store
	if wrap != nil {
		scope = wrap(store)
	}
	ids := shared.NewSequentialIDGenerator(1)
	clock := shared.NewFixedClock(testNow)
	events := &MockEventPublisher{}

	f := &fixture{
		store:       store,
		ids:         ids,
		clock:       clock,
		events:      events,
		runs:        appledger.NewProductionRunService(scope, ids, clock, nil),
		allocations: appledger.NewAllocationService(scope, ids, clock, nil),
		sales:       appledger.NewSaleService(scope, ids, clock, nil),
		returns:     appledger.NewReturnService(scope, ids, clock, nil),
		queries:     appledger.NewQueryService(store),
	}
	f.runs.SetEventPublisher(events)
	f.allocations.SetEventPublisher(events)
	f.sales.SetEventPublisher(events)
	f.returns.SetEventPublisher(events)
	return f
}

func (f *fixture) registerRun(t *testing.T, releaseID uuid.UUID, format string, quantity int64, manufactured time.Time) uuid.UUID {
	t.Helper()
	resp, err := f.runs.Register(context.Background(), appledger.RegisterProductionRunRequest{
		ReleaseID:         releaseID,
		Format:            format,
		Description:       "first pressing",
		Manufacturer:      "GZ Media",
		ManufacturingDate: manufactured,
		Quantity:          quantity,
	})
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) allocate(t *testing.T, runID, distributorID uuid.UUID, quantity int64) *appledger.AllocationResponse {
	t.Helper()
	resp, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
		ProductionRunID: runID,
		DistributorID:   distributorID,
		Quantity:        quantity,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return resp
}

func distributorSale(releaseID, distributorID uuid.UUID, quantity int64) appledger.RecordSaleRequest {
	return appledger.RecordSaleRequest{
		LabelID:       uuid.New(),
		SaleDate:      testNow,
		Channel:       "DISTRIBUTOR",
		DistributorID: &distributorID,
		Lines: []appledger.SaleLineRequest{
			{ReleaseID: releaseID, Format: "VINYL", Quantity: quantity, UnitPrice: decimal.RequireFromString("12.50")},
		},
	}
}

func distributorReturn(releaseID, distributorID uuid.UUID, quantity int64) appledger.RecordReturnRequest {
	return appledger.RecordReturnRequest{
		LabelID:       uuid.New(),
		DistributorID: distributorID,
		ReturnDate:    testNow,
		Lines: []appledger.ReturnLineRequest{
			{ReleaseID: releaseID, Format: "VINYL", Quantity: quantity},
		},
	}
}

func requireInsufficient(t *testing.T, err error, requested, available int64) {
	t.Helper()
	var insufficient *shared.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient), "expected InsufficientInventoryError, got %v", err)
	assert.Equal(t, requested, insufficient.Requested)
	assert.Equal(t, available, insufficient.Available)
}

func (f *fixture) allocation(t *testing.T, runID, allocationID uuid.UUID) appledger.AllocationResponse {
	t.Helper()
	allocations, err := f.queries.AllocationsByProductionRun(context.Background(), runID)
	require.NoError(t, err)
	for _, a := range allocations {
		if a.ID == allocationID {
			return a
		}
	}
	t.Fatalf("allocation %s not found", allocationID)
	return appledger.AllocationResponse{}
}

func (f *fixture) available(t *testing.T, runID uuid.UUID) int64 {
	t.Helper()
	resp, err := f.queries.AvailableQuantity(context.Background(), runID)
	require.NoError(t, err)
	return resp.Available
}

func (f *fixture) requireConsistent(t *testing.T, runID uuid.UUID) {
	t.Helper()
	report, err := f.queries.Reconcile(context.Background(), runID)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "discrepancies=%v violations=%v", report.Discrepancies, report.Violations)
}
