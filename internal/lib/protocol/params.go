package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harborstake/minipoold/internal/lib/minipool"
)

// Params is a static ProtocolParams implementation loaded from JSON.
// Fractions are against minipool.FractionScale, amounts in base units,
// times and durations in seconds.
type Params struct {
	MinStakingDurationSecs  uint64 `json:"minStakingDurationSecs"`
	MaxStakingDurationSecs  uint64 `json:"maxStakingDurationSecs"`
	MinCapital              uint64 `json:"minCapitalPerMinipool"`
	MaxCapital              uint64 `json:"maxCapitalPerMinipool"`
	MinTotalStakeAmt        uint64 `json:"minTotalStake"`
	ReducedTierSlotCount    uint64 `json:"reducedTierSlots"`
	ReducedTierMinimumAmt   uint64 `json:"reducedTierMinimum"`
	TotalStakeTargetAmt     uint64 `json:"totalStakeTarget"`
	MaxPooledMatchAmt       uint64 `json:"maxPooledMatch"`
	CancelMoratoriumSecs    int64  `json:"cancelMoratoriumSecs"`
	RewardIntervalSecs      int64  `json:"rewardIntervalSecs"`
	CycleDurationSecs       int64  `json:"cycleDurationSecs"`
	RenewalToleranceSecs    int64  `json:"renewalToleranceSecs"`
	CommissionFeeFraction   uint64 `json:"commissionFeeFraction"`
	ExpectedRewardFraction  uint64 `json:"expectedRewardRateFraction"`
	MinCollateralizationFrc uint64 `json:"minCollateralizationRatio"`
}

// DefaultParams returns a workable baseline configuration.
func DefaultParams() *Params {
	return &Params{
		MinStakingDurationSecs:  7 * 86400,
		MaxStakingDurationSecs:  365 * 86400,
		MinCapital:              500_000,
		MaxCapital:              100_000_000,
		MinTotalStakeAmt:        1_000_000,
		ReducedTierSlotCount:    100,
		ReducedTierMinimumAmt:   500_000,
		TotalStakeTargetAmt:     2_000_000,
		MaxPooledMatchAmt:       1_500_000,
		CancelMoratoriumSecs:    5 * 86400,
		RewardIntervalSecs:      86400,
		CycleDurationSecs:       14 * 86400,
		RenewalToleranceSecs:    2 * 86400,
		CommissionFeeFraction:   150_000, // 15%
		ExpectedRewardFraction:  100_000, // 10% annualized
		MinCollateralizationFrc: 100_000, // 10%
	}
}

// LoadParams reads a Params file, falling back to defaults when the file is
// absent.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultParams(), nil
		}
		return nil, fmt.Errorf("reading params file %s: %w", path, err)
	}
	p := DefaultParams()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing params file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("params file %s: %w", path, err)
	}
	return p, nil
}

// SaveParams writes to a temp file in the target directory then renames so
// readers never observe a partial file.
func SaveParams(p *Params, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "params-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (p *Params) Validate() error {
	if p.MinStakingDurationSecs == 0 || p.MaxStakingDurationSecs < p.MinStakingDurationSecs {
		return fmt.Errorf("staking duration bounds invalid: min %d max %d", p.MinStakingDurationSecs, p.MaxStakingDurationSecs)
	}
	if p.MaxCapital < p.MinCapital {
		return fmt.Errorf("capital bounds invalid: min %d max %d", p.MinCapital, p.MaxCapital)
	}
	if p.CommissionFeeFraction < minipool.MinDelegationFee || p.CommissionFeeFraction > minipool.FractionScale {
		return fmt.Errorf("commission fee %d out of range", p.CommissionFeeFraction)
	}
	if p.CycleDurationSecs <= 0 {
		return fmt.Errorf("cycle duration must be positive, got %d", p.CycleDurationSecs)
	}
	return nil
}

func (p *Params) MinStakingDuration() uint64        { return p.MinStakingDurationSecs }
func (p *Params) MaxStakingDuration() uint64        { return p.MaxStakingDurationSecs }
func (p *Params) MinCapitalPerMinipool() uint64     { return p.MinCapital }
func (p *Params) MaxCapitalPerMinipool() uint64     { return p.MaxCapital }
func (p *Params) MinTotalStake() uint64             { return p.MinTotalStakeAmt }
func (p *Params) ReducedTierSlots() uint64          { return p.ReducedTierSlotCount }
func (p *Params) ReducedTierMinimum() uint64        { return p.ReducedTierMinimumAmt }
func (p *Params) TotalStakeTarget() uint64          { return p.TotalStakeTargetAmt }
func (p *Params) MaxPooledMatch() uint64            { return p.MaxPooledMatchAmt }
func (p *Params) CancelMoratorium() int64           { return p.CancelMoratoriumSecs }
func (p *Params) RewardInterval() int64             { return p.RewardIntervalSecs }
func (p *Params) CycleDuration() int64              { return p.CycleDurationSecs }
func (p *Params) RenewalTolerance() int64           { return p.RenewalToleranceSecs }
func (p *Params) CommissionFee() uint64             { return p.CommissionFeeFraction }
func (p *Params) ExpectedRewardRate() uint64        { return p.ExpectedRewardFraction }
func (p *Params) MinCollateralizationRatio() uint64 { return p.MinCollateralizationFrc }
