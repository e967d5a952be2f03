package minipool

import "fmt"

// MinipoolStatus represents the lifecycle state of a minipool.
type MinipoolStatus uint8

const (
	StatusPrelaunch MinipoolStatus = iota
	StatusLaunched
	StatusStaking
	StatusWithdrawable
	StatusFinished
	StatusCanceled
	StatusError
)

func (s MinipoolStatus) String() string {
	switch s {
	case StatusPrelaunch:
		return "Prelaunch"
	case StatusLaunched:
		return "Launched"
	case StatusStaking:
		return "Staking"
	case StatusWithdrawable:
		return "Withdrawable"
	case StatusFinished:
		return "Finished"
	case StatusCanceled:
		return "Canceled"
	case StatusError:
		return "Error"
	}
	return fmt.Sprintf("MinipoolStatus(%d)", uint8(s))
}

const (
	// FractionScale is the fixed-point scale for all fractional protocol
	// values (delegation fee, commission, rates, prices, ratios).
	// ie: 20_000 = 2% -> 0.02
	FractionScale = 1_000_000

	// MinDelegationFee is the lowest fee a node operator may request (2%).
	MinDelegationFee = 20_000

	SecondsPerYear = 365 * 24 * 60 * 60
)

// RenewalMissedCode is stamped on a settled minipool when the renewal window
// was missed by less than one full cycle length - off-core consumers use it
// to detect entities that narrowly failed to recompound.
const RenewalMissedCode = "RENEWAL_MISSED"

// Minipool is one owner's validator slot.  A record is created at admission,
// driven through its cycle by agent-reported events, and either terminated or
// recompounded in place under the same index.
type Minipool struct {
	// Index is assigned once and permanently bound to ValidatorIdentity,
	// even across many reuse cycles.
	Index             uint64
	ValidatorIdentity string

	Status        MinipoolStatus
	Duration      uint64 // requested validation period, seconds
	DelegationFee uint64 // fraction of FractionScale, [MinDelegationFee, FractionScale)
	Owner         string
	AssignedAgent string

	OperatorCapital        uint64 // current-cycle operator contribution
	OperatorCapitalInitial uint64 // first-ever operator contribution
	LiquidStakerCapital    uint64 // pooled capital matched for the current cycle

	CreationTime     int64
	InitialStartTime int64 // first-ever cycle start; never reset on renewal
	StartTime        int64
	EndTime          int64

	TotalReportedReward uint64
	ErrorCode           string

	// Settlement outputs
	OperatorRewardAmt     uint64
	LiquidStakerRewardAmt uint64
	CollateralSlashAmt    uint64

	// Reward-accrual bookkeeping
	LastRewardTime                     int64
	CumulativeRewardsWithdrawn         uint64
	OperatorUnclaimedPartialReward     uint64
	LiquidStakerUnclaimedPartialReward uint64
}

func (m *Minipool) String() string {
	return fmt.Sprintf("Minipool{Index: %d, Identity: %s, Status: %s, Owner: %s, OperatorCapital: %d, LiquidStakerCapital: %d}",
		m.Index, m.ValidatorIdentity, m.Status, m.Owner, m.OperatorCapital, m.LiquidStakerCapital)
}
