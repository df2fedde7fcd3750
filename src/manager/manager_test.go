package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lumixd/src/connectors"
	"lumixd/src/database"
	"lumixd/src/executor"
	"lumixd/src/model"
	"lumixd/src/notify"
	"lumixd/src/repository"
	"lumixd/src/scheduler"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	return db
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubGateway struct {
	mu        sync.Mutex
	swapCalls int
}

func (g *stubGateway) GetQuote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (*connectors.Quote, error) {
	return &connectors.Quote{InputMint: inputMint, OutputMint: outputMint, OutAmount: "1000000000"}, nil
}

func (g *stubGateway) ExecuteSwap(ctx context.Context, quote *connectors.Quote, walletPubkey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.swapCalls++
	return fmt.Sprintf("sig-%d", g.swapCalls), nil
}

func (g *stubGateway) swaps() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.swapCalls
}

type stubOracle struct{ price decimal.Decimal }

func (o *stubOracle) GetPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	return o.price, nil
}

type fixture struct {
	orders  *repository.OrderRepository
	gateway *stubGateway
	oracle  *stubOracle
	sched   *scheduler.Scheduler
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	orders := (&repository.OrderRepository{}).WithDB(db)
	positions := (&repository.PositionRepository{}).WithDB(db)
	gateway := &stubGateway{}
	oracle := &stubOracle{price: d("1")}
	hub := notify.NewHub()
	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	exec := executor.New(orders, positions, gateway, oracle, hub).
		WithDefaults("test-wallet", d("10"))
	mgr := New(orders, sched, exec, hub)

	return &fixture{orders: orders, gateway: gateway, oracle: oracle, sched: sched, mgr: mgr}
}

func (f *fixture) status(t *testing.T, id string) *model.Order {
	t.Helper()

	order, err := f.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func TestCreateImmediateExecutesSynchronously(t *testing.T) {
	f := newFixture(t)

	id, err := f.mgr.CreateImmediate(context.Background(),
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Synchronous dispatch: the order is terminal by the time Create returns.
	got := f.status(t, id)
	require.Equal(t, model.OrderStatusExecuted, got.Status)
	require.NotEmpty(t, got.Signature)
	require.Equal(t, 1, f.gateway.swaps())
}

func TestCreateImmediateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		direction string
		fraction  string
		wantErr   error
	}{
		{name: "unknown direction", direction: "hold", fraction: "1", wantErr: ErrInvalidDirection},
		{name: "zero fraction", direction: model.OrderDirectionSell, fraction: "0", wantErr: ErrInvalidFraction},
		{name: "fraction above one", direction: model.OrderDirectionSell, fraction: "1.5", wantErr: ErrInvalidFraction},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.mgr.CreateImmediate(ctx, "inst-1", "TOKEN", tc.direction, d(tc.fraction), nil)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Nothing persisted, nothing traded.
	pending, err := f.orders.FindPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Equal(t, 0, f.gateway.swaps())
}

func TestCreateTimedArmsAndFires(t *testing.T) {
	f := newFixture(t)

	id, err := f.mgr.CreateTimed(context.Background(),
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), 30*time.Millisecond)
	require.NoError(t, err)

	// Persisted pending before the timer fires.
	require.Equal(t, model.OrderStatusPending, f.status(t, id).Status)
	require.Equal(t, 1, f.sched.Armed())

	require.Eventually(t, func() bool {
		return f.status(t, id).Status == model.OrderStatusExecuted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, f.gateway.swaps())
}

func TestCreateTimedRejectsNegativeDelay(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.CreateTimed(context.Background(),
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), -time.Minute)
	require.ErrorIs(t, err, ErrNegativeDelay)
	require.Equal(t, 0, f.sched.Armed())
}

func TestCreateConditionalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.CreateConditional(ctx,
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), time.Minute, "sideways", d("100"))
	require.ErrorIs(t, err, ErrInvalidCondition)

	_, err = f.mgr.CreateConditional(ctx,
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), time.Minute, model.ConditionAboveEntry, d("0"))
	require.ErrorIs(t, err, ErrMissingEntryPrice)

	require.Equal(t, 0, f.sched.Armed())
}

func TestCreateConditionalFiresEvaluation(t *testing.T) {
	f := newFixture(t)
	f.oracle.price = d("90") // below the entry of 100

	id, err := f.mgr.CreateConditional(context.Background(),
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), 30*time.Millisecond,
		model.ConditionAboveEntry, d("100"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.status(t, id).Status == model.OrderStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	got := f.status(t, id)
	require.Equal(t, model.ReasonConditionNotMet, got.Reason)
	require.Equal(t, 0, f.gateway.swaps())
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.CreateTimed(ctx,
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), time.Hour)
	require.NoError(t, err)

	cancelled, err := f.mgr.Cancel(ctx, id)
	require.NoError(t, err)
	require.True(t, cancelled)
	require.Equal(t, 0, f.sched.Armed())

	got := f.status(t, id)
	require.Equal(t, model.OrderStatusCancelled, got.Status)
	require.Equal(t, model.ReasonUserCancelled, got.Reason)

	// The disarmed timer never trades.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, f.gateway.swaps())
}

func TestCancelExecutedOrderIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.CreateImmediate(ctx,
		"inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), nil)
	require.NoError(t, err)

	cancelled, err := f.mgr.Cancel(ctx, id)
	require.NoError(t, err)
	require.False(t, cancelled)

	require.Equal(t, model.OrderStatusExecuted, f.status(t, id).Status)
}

func TestCancelUnknownOrder(t *testing.T) {
	f := newFixture(t)

	cancelled, err := f.mgr.Cancel(context.Background(), "no-such-order")
	require.NoError(t, err)
	require.False(t, cancelled)
}

func TestGetStatusUnknownOrder(t *testing.T) {
	f := newFixture(t)

	order, err := f.mgr.GetStatus(context.Background(), "no-such-order")
	require.NoError(t, err)
	require.Nil(t, order)
}

func TestListPendingSoonestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later, err := f.mgr.CreateTimed(ctx, "inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), 2*time.Hour)
	require.NoError(t, err)
	sooner, err := f.mgr.CreateTimed(ctx, "inst-1", "TOKEN", model.OrderDirectionBuy, d("1"), time.Hour)
	require.NoError(t, err)

	pending, err := f.mgr.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, sooner, pending[0].ID)
	require.Equal(t, later, pending[1].ID)
}
