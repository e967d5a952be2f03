package minipool

// Interfaces for the external collaborators the manager calls out to.  Each
// is injected once at construction rather than looked up per call.

// Vault holds operator-side funds in custody.
type Vault interface {
	DepositCapital(amount uint64) error
	WithdrawCapital(amount uint64) error
}

// LiquidStakerPool holds pooled external capital and issues claims on it.
type LiquidStakerPool interface {
	AmountAvailableForStaking() (uint64, error)
	WithdrawForStaking(amount uint64) error
	DepositFromStaking(principal, reward uint64) error
	DepositFromPeriodicForwarding(amount uint64) error
}

// CollateralLedger tracks an owner's operator stake, assigned and validating
// pooled capital, collateral balance and slash application.
type CollateralLedger interface {
	IncreaseStake(owner string, amount uint64) error
	DecreaseStake(owner string, amount uint64) error
	IncreaseAssigned(owner string, amount uint64) error
	DecreaseAssigned(owner string, amount uint64) error
	IncreaseValidating(owner string, amount uint64) error
	DecreaseValidating(owner string, amount uint64) error
	AssignedOf(owner string) (uint64, error)
	ValidatingOf(owner string) (uint64, error)
	HighWaterMark(owner string) (uint64, error)
	SetHighWaterMark(owner string, amount uint64) error
	CollateralizationRatio(owner string) (uint64, error) // fraction of FractionScale
	RewardEligibilityStart(owner string) (int64, error)
	SetRewardEligibilityStart(owner string, t int64) error
	CollateralBalanceOf(owner string) (uint64, error)
	ApplySlash(owner string, amount uint64) error
}

// PriceOracle supplies the collateral-asset price in the native asset,
// as a fraction of FractionScale.
type PriceOracle interface {
	CollateralPrice() (uint64, error)
}

// ProtocolParams exposes protocol-wide configuration.  All fractions are
// expressed against FractionScale, all amounts in base units, all times in
// seconds.
type ProtocolParams interface {
	MinStakingDuration() uint64
	MaxStakingDuration() uint64
	MinCapitalPerMinipool() uint64
	MaxCapitalPerMinipool() uint64
	MinTotalStake() uint64
	ReducedTierSlots() uint64
	ReducedTierMinimum() uint64
	TotalStakeTarget() uint64
	MaxPooledMatch() uint64
	CancelMoratorium() int64
	RewardInterval() int64
	CycleDuration() int64
	RenewalTolerance() int64
	CommissionFee() uint64
	ExpectedRewardRate() uint64
	MinCollateralizationRatio() uint64
}

// AgentRegistry supplies the next validator-agent authorized to report on a
// newly admitted minipool.
type AgentRegistry interface {
	NextAvailableAgent() (string, error)
}

// EarlyParticipantRegistry reports an account's position in the
// early-participation program; ok is false when the account never enrolled.
type EarlyParticipantRegistry interface {
	IndexOf(account string) (index uint64, ok bool, err error)
}

// ValidatorRegistry commits capital to the external validation process.
type ValidatorRegistry interface {
	Register(credentials []byte, amount uint64) error
}

// CredentialSource derives per-identity registration credentials.
type CredentialSource interface {
	CredentialsFor(identity string) ([]byte, error)
}

// Clock supplies the current unix time.  Timing rules are comparisons against
// this clock - nothing in the core waits.
type Clock interface {
	Now() int64
}
