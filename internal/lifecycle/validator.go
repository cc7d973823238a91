package lifecycle

import (
	"context"
	"time"

	"github.com/dutchbook/dutchbook/internal/model"
)

// DeadlineValidator is the offline validator: without chain access it can
// only observe deadline expiry, everything else reads as still valid. Real
// deployments inject a chain-backed OrderValidator instead.
type DeadlineValidator struct {
	Now func() time.Time
}

func (v DeadlineValidator) Validate(_ context.Context, order *model.Order) (Validation, error) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if order.Deadline > 0 && now().Unix() > order.Deadline {
		return Validation{Result: ResultExpired}, nil
	}
	return Validation{Result: ResultOK}, nil
}
