package minipool

import (
	"errors"
	"fmt"
)

// The manager fails every operation with one of the errors below so callers
// can match on kind.  Any error aborts the whole operation - no partial field
// mutation and no partial fund movement.
var (
	// input validation
	ErrInvalidIdentity          = errors.New("validator identity must not be empty")
	ErrMinipoolNotFound         = errors.New("no minipool found for validator identity")
	ErrInvalidDuration          = errors.New("duration outside configured bounds")
	ErrInvalidDelegationFee     = errors.New("delegation fee outside allowed bounds")
	ErrInvalidCapital           = errors.New("capital amounts do not satisfy tier requirements")
	ErrIncorrectRefundAmount    = errors.New("refund must equal operator plus pooled capital exactly")
	ErrUnexpectedForwardedFunds = errors.New("zero-reward report must not forward funds")
	ErrNothingOwed              = errors.New("no unclaimed partial rewards owed")
	ErrNoAgentAvailable         = errors.New("no validator-agent available for assignment")

	// authorization
	ErrNotOwner         = errors.New("caller is not the minipool owner")
	ErrNotAssignedAgent = errors.New("caller is not the assigned validator-agent")

	// timing
	ErrCancelMoratorium      = errors.New("cancellation moratorium has not elapsed")
	ErrRewardIntervalNotMet  = errors.New("reward interval has not elapsed since last distribution")
	ErrFutureTimestamp       = errors.New("reported timestamp is in the future")
	ErrEndBeforeStart        = errors.New("reported end time does not follow start time")

	// liquidity
	ErrInsufficientHeldFunds     = errors.New("held funds cannot cover required payout")
	ErrInsufficientPoolLiquidity = errors.New("pool cannot cover requested pooled capital")

	// collateralization
	ErrBelowMinCollateralization = errors.New("collateralization ratio below protocol minimum")

	// internal consistency
	ErrNegativeCycleDuration = errors.New("computed cycle duration is negative")
	ErrZeroCollateralPrice   = errors.New("collateral price is zero")
	ErrValueOverflow         = errors.New("value exceeds 64-bit bound")
)

// InvalidStateTransitionError reports a lifecycle transition not permitted by
// the transition table.
type InvalidStateTransitionError struct {
	From MinipoolStatus
	To   MinipoolStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is a state-transition error.
func IsInvalidTransition(err error) bool {
	var ste *InvalidStateTransitionError
	return errors.As(err, &ste)
}
