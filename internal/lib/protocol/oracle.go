package protocol

import "sync/atomic"

// StaticOracle reports a settable collateral price, expressed as a fraction
// of minipool.FractionScale in the native asset.  The daemon refreshes it
// from an external feed; a zero price makes slashes fail closed.
type StaticOracle struct {
	price atomic.Uint64
}

func NewStaticOracle(initialPrice uint64) *StaticOracle {
	o := &StaticOracle{}
	o.price.Store(initialPrice)
	return o
}

func (o *StaticOracle) CollateralPrice() (uint64, error) {
	return o.price.Load(), nil
}

func (o *StaticOracle) SetPrice(p uint64) {
	o.price.Store(p)
}
