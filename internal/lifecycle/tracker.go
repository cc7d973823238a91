// Package lifecycle drives the order status state machine. The polling
// cadence lives in an external scheduler; each Step invocation is stateless
// and idempotent, so at-least-once delivery is safe.
package lifecycle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
)

// ValidationResult is the outcome of an on-chain order validity check.
type ValidationResult string

const (
	ResultOK                ValidationResult = "OK"
	ResultInsufficientFunds ValidationResult = "INSUFFICIENT_FUNDS"
	ResultExpired           ValidationResult = "EXPIRED"
	ResultNonceUsed         ValidationResult = "NONCE_USED"
	ResultInvalidSignature  ValidationResult = "INVALID_SIGNATURE"
	ResultInvalidFields     ValidationResult = "INVALID_ORDER_FIELDS"
	ResultUnknown           ValidationResult = "UNKNOWN_ERROR"
)

// Validation pairs the result with fill details when the nonce was consumed
// by an on-chain fill.
type Validation struct {
	Result ValidationResult
	Fill   *repository.FillData
}

// OrderValidator checks an order's current on-chain validity. Provided by
// the chain-access layer; the tracker never talks to a node directly.
type OrderValidator interface {
	Validate(ctx context.Context, order *model.Order) (Validation, error)
}

// Next is the transition function. Terminal statuses absorb: the current
// status comes back unchanged regardless of the validation result. A used
// nonce means the order left the book on-chain: filled when a fill event
// exists, cancelled otherwise.
func Next(current model.OrderStatus, v Validation) model.OrderStatus {
	if current.Terminal() {
		return current
	}
	switch v.Result {
	case ResultOK:
		return model.StatusOpen
	case ResultInsufficientFunds:
		return model.StatusInsufficientFunds
	case ResultExpired:
		return model.StatusExpired
	case ResultNonceUsed:
		if v.Fill != nil {
			return model.StatusFilled
		}
		return model.StatusCancelled
	default:
		return model.StatusError
	}
}

// StepInput is what the external scheduler hands each invocation.
type StepInput struct {
	OrderHash     common.Hash       `json:"orderHash"`
	ChainID       uint64            `json:"chainId"`
	CurrentStatus model.OrderStatus `json:"currentStatus"`
	RetryCount    int               `json:"retryCount"`
}

// StepOutput is handed back to the scheduler, which owns the sleep loop.
type StepOutput struct {
	Status          model.OrderStatus `json:"orderStatus"`
	RetryCount      int               `json:"retryCount"`
	NextWaitSeconds int               `json:"nextWaitSeconds"`
}

// Tracker executes lifecycle steps against the repository.
type Tracker struct {
	orders    *repository.OrderRepository
	validator OrderValidator
	logger    *zap.Logger
}

func NewTracker(orders *repository.OrderRepository, validator OrderValidator, logger *zap.Logger) *Tracker {
	return &Tracker{orders: orders, validator: validator, logger: logger}
}

// Step looks up the order, checks on-chain validity, computes the next
// status and persists it only when it changed. Any failure propagates whole
// to the scheduler for a full-step retry; the repository's writes are atomic
// so no partial state is ever left behind.
func (t *Tracker) Step(ctx context.Context, in StepInput) (StepOutput, error) {
	out := StepOutput{
		RetryCount:      in.RetryCount + 1,
		NextWaitSeconds: NextWaitSeconds(in.RetryCount),
	}

	order, err := t.orders.GetByHash(ctx, in.OrderHash)
	if err != nil {
		return StepOutput{}, err
	}

	if order.OrderStatus.Terminal() {
		// Absorbing: repeated deliveries are no-ops, no second write.
		out.Status = order.OrderStatus
		return out, nil
	}

	v, err := t.validator.Validate(ctx, order)
	if err != nil {
		return StepOutput{}, err
	}

	newStatus := Next(order.OrderStatus, v)
	if newStatus != order.OrderStatus {
		var fill *repository.FillData
		if newStatus == model.StatusFilled {
			fill = v.Fill
		}
		if err := t.orders.UpdateOrderStatus(ctx, in.OrderHash, newStatus, fill); err != nil {
			return StepOutput{}, err
		}
		t.logger.Info("lifecycle transition",
			zap.String("order_hash", in.OrderHash.Hex()),
			zap.String("from", string(order.OrderStatus)),
			zap.String("to", string(newStatus)),
			zap.Int("retry_count", in.RetryCount))
	}

	out.Status = newStatus
	return out, nil
}
