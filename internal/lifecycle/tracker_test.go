package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/index"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/internal/store"
)

func TestNextTransitions(t *testing.T) {
	fill := &repository.FillData{TxHash: common.HexToHash("0x1"), FillBlock: 10}
	cases := []struct {
		name    string
		current model.OrderStatus
		v       Validation
		want    model.OrderStatus
	}{
		{"unverified ok opens", model.StatusUnverified, Validation{Result: ResultOK}, model.StatusOpen},
		{"open stays open", model.StatusOpen, Validation{Result: ResultOK}, model.StatusOpen},
		{"insufficient funds", model.StatusOpen, Validation{Result: ResultInsufficientFunds}, model.StatusInsufficientFunds},
		{"insufficient funds recovers", model.StatusInsufficientFunds, Validation{Result: ResultOK}, model.StatusOpen},
		{"expired", model.StatusOpen, Validation{Result: ResultExpired}, model.StatusExpired},
		{"nonce used with fill", model.StatusOpen, Validation{Result: ResultNonceUsed, Fill: fill}, model.StatusFilled},
		{"nonce used without fill", model.StatusOpen, Validation{Result: ResultNonceUsed}, model.StatusCancelled},
		{"invalid signature errors", model.StatusOpen, Validation{Result: ResultInvalidSignature}, model.StatusError},
		{"invalid fields errors", model.StatusOpen, Validation{Result: ResultInvalidFields}, model.StatusError},
		{"unknown errors", model.StatusOpen, Validation{Result: ResultUnknown}, model.StatusError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Next(c.current, c.v))
		})
	}
}

func TestNextTerminalAbsorbs(t *testing.T) {
	terminal := []model.OrderStatus{model.StatusFilled, model.StatusCancelled, model.StatusExpired, model.StatusError}
	results := []ValidationResult{ResultOK, ResultInsufficientFunds, ResultExpired, ResultNonceUsed, ResultUnknown}
	for _, s := range terminal {
		for _, r := range results {
			assert.Equal(t, s, Next(s, Validation{Result: r}), "status=%s result=%s", s, r)
		}
	}
}

type stubValidator struct {
	mu    sync.Mutex
	v     Validation
	err   error
	calls int
}

func (s *stubValidator) Validate(ctx context.Context, order *model.Order) (Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.v, s.err
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *countingPublisher) OrderUpdated(ctx context.Context, o *model.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return nil
}

func (p *countingPublisher) Close() error { return nil }

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func newTrackerHarness(t *testing.T, validator OrderValidator) (*Tracker, *repository.OrderRepository, *countingPublisher) {
	t.Helper()
	st, err := store.OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	pub := &countingPublisher{}
	repo := repository.NewOrderRepository(st, index.NewRouter("dutch", index.DutchTable), pub, zaptest.NewLogger(t))
	return NewTracker(repo, validator, zaptest.NewLogger(t)), repo, pub
}

func seedOrder(t *testing.T, repo *repository.OrderRepository, status model.OrderStatus) *model.Order {
	t.Helper()
	o := &model.Order{
		OrderHash:   common.HexToHash(fmt.Sprintf("0x%064x", 1)),
		OrderType:   model.TypeDutch,
		Offerer:     common.HexToAddress("0xaa"),
		ChainID:     1,
		OrderStatus: status,
		Pair:        "WETH/USDC",
		CreatedAt:   1000,
		Deadline:    1600,
		Nonce:       "1",
	}
	require.NoError(t, repo.PutOrderAndUpdateNonce(context.Background(), o))
	return o
}

func TestStepPersistsTransition(t *testing.T) {
	val := &stubValidator{v: Validation{Result: ResultExpired}}
	tracker, repo, _ := newTrackerHarness(t, val)
	o := seedOrder(t, repo, model.StatusOpen)

	out, err := tracker.Step(context.Background(), StepInput{
		OrderHash: o.OrderHash, ChainID: 1, CurrentStatus: model.StatusOpen, RetryCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, out.Status)
	assert.Equal(t, 4, out.RetryCount)
	assert.Equal(t, 12, out.NextWaitSeconds)

	got, err := repo.GetByHash(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.OrderStatus)
}

func TestStepNoWriteWhenUnchanged(t *testing.T) {
	val := &stubValidator{v: Validation{Result: ResultOK}}
	tracker, repo, pub := newTrackerHarness(t, val)
	o := seedOrder(t, repo, model.StatusOpen)
	before := pub.count()

	out, err := tracker.Step(context.Background(), StepInput{OrderHash: o.OrderHash, CurrentStatus: model.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, out.Status)
	assert.Equal(t, before, pub.count(), "no mutation should be published")
}

func TestStepTerminalShortCircuits(t *testing.T) {
	val := &stubValidator{v: Validation{Result: ResultOK}}
	tracker, repo, pub := newTrackerHarness(t, val)
	o := seedOrder(t, repo, model.StatusFilled)
	before := pub.count()

	out, err := tracker.Step(context.Background(), StepInput{OrderHash: o.OrderHash, CurrentStatus: model.StatusFilled, RetryCount: 7})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, out.Status)
	assert.Equal(t, 8, out.RetryCount)
	assert.Equal(t, 0, val.calls, "terminal orders skip validation")
	assert.Equal(t, before, pub.count())
}

func TestStepNonceUsedWithFillPersistsFillData(t *testing.T) {
	fill := &repository.FillData{TxHash: common.HexToHash("0xf1"), FillBlock: 555}
	val := &stubValidator{v: Validation{Result: ResultNonceUsed, Fill: fill}}
	tracker, repo, _ := newTrackerHarness(t, val)
	o := seedOrder(t, repo, model.StatusOpen)

	out, err := tracker.Step(context.Background(), StepInput{OrderHash: o.OrderHash, CurrentStatus: model.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, out.Status)

	got, err := repo.GetByHash(context.Background(), o.OrderHash)
	require.NoError(t, err)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, fill.TxHash, *got.TxHash)
	assert.Equal(t, uint64(555), got.FillBlock)
}

func TestStepUnknownOrder(t *testing.T) {
	tracker, _, _ := newTrackerHarness(t, &stubValidator{})
	_, err := tracker.Step(context.Background(), StepInput{OrderHash: common.HexToHash("0xff")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeadlineValidator(t *testing.T) {
	v := DeadlineValidator{Now: func() time.Time { return time.Unix(2000, 0) }}
	live := &model.Order{Deadline: 3000}
	dead := &model.Order{Deadline: 1500}

	got, err := v.Validate(context.Background(), live)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, got.Result)

	got, err = v.Validate(context.Background(), dead)
	require.NoError(t, err)
	assert.Equal(t, ResultExpired, got.Result)
}
