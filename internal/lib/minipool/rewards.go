package minipool

import (
	"math"
	"math/big"
)

// splitReward divides a reported reward between the node operator and the
// liquid stakers.  Half goes nominally to each side; the commission is taken
// from the liquid-staker half and the operator receives the remainder, so
// operatorShare + liquidStakerShare == reward exactly by construction.  All
// truncation (the halving and the commission multiply) rounds down, favoring
// the protocol over the claimant.
func splitReward(reward, commissionFee uint64) (operatorShare, liquidStakerShare uint64) {
	half := reward / 2
	commission := mulDiv(half, commissionFee, FractionScale)
	liquidStakerShare = half - commission
	operatorShare = reward - liquidStakerShare
	return operatorShare, liquidStakerShare
}

// expectedReward sizes the reward a cycle of the given elapsed length should
// have produced for the pooled capital amount, at the protocol's annual rate.
func expectedReward(pooledCapital, annualRate uint64, elapsedSeconds int64) (uint64, error) {
	if elapsedSeconds < 0 {
		return 0, ErrNegativeCycleDuration
	}
	v := new(big.Int).SetUint64(pooledCapital)
	v.Mul(v, new(big.Int).SetUint64(annualRate))
	v.Mul(v, big.NewInt(elapsedSeconds))
	v.Div(v, big.NewInt(FractionScale))
	v.Div(v, big.NewInt(SecondsPerYear))
	if !v.IsUint64() {
		return 0, ErrValueOverflow
	}
	return v.Uint64(), nil
}

// slashAmount converts an expected native-asset reward into collateral units
// at the oracle price.  A zero price fails closed rather than dividing.
func slashAmount(expected, collateralPrice uint64) (uint64, error) {
	if collateralPrice == 0 {
		return 0, ErrZeroCollateralPrice
	}
	v := new(big.Int).SetUint64(expected)
	v.Mul(v, big.NewInt(FractionScale))
	v.Div(v, new(big.Int).SetUint64(collateralPrice))
	if !v.IsUint64() {
		return 0, ErrValueOverflow
	}
	return v.Uint64(), nil
}

// mulDiv computes a*b/den with a 128-bit intermediate.  Inputs are bounded
// such that the result always fits back in 64 bits (b <= den in every caller).
func mulDiv(a, b, den uint64) uint64 {
	v := new(big.Int).SetUint64(a)
	v.Mul(v, new(big.Int).SetUint64(b))
	v.Div(v, new(big.Int).SetUint64(den))
	return v.Uint64()
}

// addChecked guards the fixed-width bound on fund arithmetic.
func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrValueOverflow
	}
	return a + b, nil
}
