package minipool_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborstake/minipoold/internal/lib/minipool"
	"github.com/harborstake/minipoold/internal/lib/misc"
	"github.com/harborstake/minipoold/internal/lib/protocol"
)

const (
	testOwner    = "owner1"
	testAgent    = "agent1"
	testIdentity = "val1"

	t0  = int64(1_700_000_000)
	day = int64(86400)

	stdCapital  = uint64(1_000_000)
	stdDuration = uint64(30 * 86400)
	stdFee      = uint64(20_000)

	poolDeposits = uint64(5_000_000)
	collateral   = uint64(500_000)
)

type testEnv struct {
	manager  *minipool.Manager
	store    *minipool.Store
	clock    *protocol.SimulatedClock
	vault    *protocol.Vault
	pool     *protocol.StakerPool
	ledger   *protocol.Ledger
	oracle   *protocol.StaticOracle
	params   *protocol.Params
	registry *protocol.RecordingRegistry
	early    *protocol.EarlyParticipants
}

func newTestEnv(t *testing.T, deposits uint64) *testEnv {
	t.Helper()
	misc.SetSecret(protocol.CredentialSeedEnvName, "test credential seed")

	store, err := minipool.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:    store,
		clock:    protocol.NewSimulatedClock(t0),
		vault:    protocol.NewVault(),
		pool:     protocol.NewStakerPool(deposits),
		oracle:   protocol.NewStaticOracle(minipool.FractionScale),
		params:   protocol.DefaultParams(),
		registry: protocol.NewRecordingRegistry(),
		early:    protocol.NewEarlyParticipants(),
	}
	env.ledger = protocol.NewLedger(env.oracle)
	require.NoError(t, env.ledger.DepositCollateral(testOwner, collateral))

	creds, err := protocol.NewSeedCredentialSource()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.manager, err = minipool.New(logger, store, minipool.Collaborators{
		Vault:             env.vault,
		Pool:              env.pool,
		Ledger:            env.ledger,
		Oracle:            env.oracle,
		Params:            env.params,
		Agents:            protocol.NewAgentPool(testAgent),
		EarlyParticipants: env.early,
		Registry:          env.registry,
		Credentials:       creds,
		Clock:             env.clock,
	})
	require.NoError(t, err)
	return env
}

func (env *testEnv) admit(t *testing.T) *minipool.Minipool {
	t.Helper()
	mp, err := env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, stdCapital, stdCapital)
	require.NoError(t, err)
	return mp
}

func (env *testEnv) launch(t *testing.T) {
	t.Helper()
	env.admit(t)
	require.NoError(t, env.manager.ClaimAndInitiateStaking(testAgent, testIdentity))
}

func (env *testEnv) startStaking(t *testing.T, start int64) {
	t.Helper()
	env.launch(t)
	if env.clock.Now() < start {
		env.clock.Set(start)
	}
	require.NoError(t, env.manager.RecordStakingStart(testAgent, testIdentity, start))
}

func (env *testEnv) current(t *testing.T) *minipool.Minipool {
	t.Helper()
	mp, err := env.manager.GetMinipool(testIdentity)
	require.NoError(t, err)
	return mp
}

func TestCreateMinipool(t *testing.T) {
	env := newTestEnv(t, poolDeposits)

	mp := env.admit(t)
	assert.Equal(t, uint64(0), mp.Index)
	assert.Equal(t, minipool.StatusPrelaunch, mp.Status)
	assert.Equal(t, testOwner, mp.Owner)
	assert.Equal(t, testAgent, mp.AssignedAgent)
	assert.Equal(t, stdCapital, mp.OperatorCapital)
	assert.Equal(t, stdCapital, mp.OperatorCapitalInitial)
	assert.Equal(t, stdCapital, mp.LiquidStakerCapital)
	assert.Equal(t, t0, mp.CreationTime)
	assert.Zero(t, mp.InitialStartTime)

	// escrowed with the call, pooled not yet claimed
	assert.Equal(t, stdCapital, env.vault.Balance())
	liquid, err := env.manager.LiquidStakedTotal()
	require.NoError(t, err)
	assert.Zero(t, liquid, "the pooled aggregate only moves at claim time")

	staked, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Equal(t, stdCapital, staked)

	// a second admission while the record is live must fail
	_, err = env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, stdCapital, stdCapital)
	assert.True(t, minipool.IsInvalidTransition(err))
}

func TestCreateMinipoolValidation(t *testing.T) {
	testCases := []struct {
		name      string
		identity  string
		duration  uint64
		fee       uint64
		sent      uint64
		requested uint64
		wantErr   error
	}{
		{"empty identity", "", stdDuration, stdFee, stdCapital, stdCapital, minipool.ErrInvalidIdentity},
		{"duration too short", testIdentity, 86_400, stdFee, stdCapital, stdCapital, minipool.ErrInvalidDuration},
		{"duration too long", testIdentity, 366 * 86_400, stdFee, stdCapital, stdCapital, minipool.ErrInvalidDuration},
		{"fee below minimum", testIdentity, stdDuration, minipool.MinDelegationFee - 1, stdCapital, stdCapital, minipool.ErrInvalidDelegationFee},
		{"fee at scale", testIdentity, stdDuration, minipool.FractionScale, stdCapital, stdCapital, minipool.ErrInvalidDelegationFee},
		{"mismatched capital", testIdentity, stdDuration, stdFee, stdCapital, stdCapital + 1, minipool.ErrInvalidCapital},
		{"below per-entity minimum", testIdentity, stdDuration, stdFee, 100_000, 100_000, minipool.ErrInvalidCapital},
		{"above per-entity maximum", testIdentity, stdDuration, stdFee, 200_000_000, 200_000_000, minipool.ErrInvalidCapital},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, poolDeposits)
			_, err := env.manager.CreateMinipool(testOwner, tc.identity, tc.duration, tc.fee, tc.sent, tc.requested)
			require.ErrorIs(t, err, tc.wantErr)

			// nothing may have moved
			assert.Zero(t, env.vault.Balance())
			staked, err := env.ledger.AssignedOf(testOwner)
			require.NoError(t, err)
			assert.Zero(t, staked)
		})
	}
}

func TestCreateMinipoolRequiresCollateral(t *testing.T) {
	env := newTestEnv(t, poolDeposits)

	_, err := env.manager.CreateMinipool("undercollateralized", testIdentity, stdDuration, stdFee, stdCapital, stdCapital)
	require.ErrorIs(t, err, minipool.ErrBelowMinCollateralization)

	// the failed registration must leave no ledger trace
	assigned, err := env.ledger.AssignedOf("undercollateralized")
	require.NoError(t, err)
	assert.Zero(t, assigned)
	eligible, err := env.ledger.RewardEligibilityStart("undercollateralized")
	require.NoError(t, err)
	assert.Zero(t, eligible)
	assert.Zero(t, env.vault.Balance())
}

func TestCreateMinipoolReducedTier(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.early.Enroll(testOwner)

	// reduced minimum against the fixed pooled match
	mp, err := env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, 500_000, 1_500_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), mp.OperatorCapital)
	assert.Equal(t, uint64(1_500_000), mp.LiquidStakerCapital)
}

func TestCreateMinipoolReducedTierRules(t *testing.T) {
	testCases := []struct {
		name      string
		sent      uint64
		requested uint64
	}{
		{"below reduced minimum", 400_000, 1_600_000},
		{"wrong pooled match", 600_000, 1_400_000},
		{"combined off target", 500_000, 1_500_001},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, poolDeposits)
			env.early.Enroll(testOwner)
			_, err := env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, tc.sent, tc.requested)
			require.ErrorIs(t, err, minipool.ErrInvalidCapital)
		})
	}
}

func TestReducedTierRequiresEnrollment(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	// same amounts as the reduced tier, but the owner never enrolled
	_, err := env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, 500_000, 1_500_000)
	require.ErrorIs(t, err, minipool.ErrInvalidCapital)
}

func TestCancelMinipool(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.admit(t)

	err := env.manager.CancelMinipool(testOwner, testIdentity)
	require.ErrorIs(t, err, minipool.ErrCancelMoratorium)

	err = env.manager.CancelMinipool("stranger", testIdentity)
	require.ErrorIs(t, err, minipool.ErrNotOwner)

	env.clock.Advance(env.params.CancelMoratorium())
	require.NoError(t, env.manager.CancelMinipool(testOwner, testIdentity))

	mp := env.current(t)
	assert.Equal(t, minipool.StatusCanceled, mp.Status)
	assert.Zero(t, env.vault.Balance())
	assigned, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, assigned)
	eligible, err := env.ledger.RewardEligibilityStart(testOwner)
	require.NoError(t, err)
	assert.Zero(t, eligible, "reward clock resets once nothing is assigned")

	// the record is reusable under the same index
	mp, err = env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, stdCapital, stdCapital)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), mp.Index)
	count, err := env.manager.MinipoolCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestCancelMinipoolByAgent(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.admit(t)

	// no moratorium applies to the agent path
	require.NoError(t, env.manager.CancelMinipoolByAgent(testAgent, testIdentity, "LAUNCH_ABANDONED"))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusCanceled, mp.Status)
	assert.Equal(t, "LAUNCH_ABANDONED", mp.ErrorCode)
	assert.Zero(t, env.vault.Balance())
}

func TestClaimAndInitiateStaking(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.admit(t)

	err := env.manager.ClaimAndInitiateStaking(testOwner, testIdentity)
	require.ErrorIs(t, err, minipool.ErrNotAssignedAgent)

	require.NoError(t, env.manager.ClaimAndInitiateStaking(testAgent, testIdentity))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusLaunched, mp.Status)

	liquid, err := env.manager.LiquidStakedTotal()
	require.NoError(t, err)
	assert.Equal(t, stdCapital, liquid)
	assert.Zero(t, env.vault.Balance(), "operator capital committed to validation")
	available, err := env.pool.AmountAvailableForStaking()
	require.NoError(t, err)
	assert.Equal(t, poolDeposits-stdCapital, available)
	assert.Equal(t, 2*stdCapital, env.registry.TotalCommitted())

	// double claim
	err = env.manager.ClaimAndInitiateStaking(testAgent, testIdentity)
	assert.True(t, minipool.IsInvalidTransition(err))
}

func TestClaimInsufficientPoolLiquidity(t *testing.T) {
	env := newTestEnv(t, stdCapital/2)
	env.admit(t)

	err := env.manager.ClaimAndInitiateStaking(testAgent, testIdentity)
	require.ErrorIs(t, err, minipool.ErrInsufficientPoolLiquidity)
	assert.Equal(t, minipool.StatusPrelaunch, env.current(t).Status)
	assert.Equal(t, stdCapital, env.vault.Balance(), "escrow untouched on failure")
}

func TestRecordStakingStart(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.launch(t)

	err := env.manager.RecordStakingStart(testAgent, testIdentity, env.clock.Now()+100)
	require.ErrorIs(t, err, minipool.ErrFutureTimestamp)

	start := env.clock.Now()
	require.NoError(t, env.manager.RecordStakingStart(testAgent, testIdentity, start))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusStaking, mp.Status)
	assert.Equal(t, start, mp.StartTime)
	assert.Equal(t, start+int64(stdDuration), mp.EndTime)
	assert.Equal(t, start, mp.InitialStartTime)
	assert.Equal(t, start, mp.LastRewardTime)

	validating, err := env.ledger.ValidatingOf(testOwner)
	require.NoError(t, err)
	assert.Equal(t, stdCapital, validating)
	highWater, err := env.ledger.HighWaterMark(testOwner)
	require.NoError(t, err)
	assert.Equal(t, stdCapital, highWater)
}

func TestDistributeRewards(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)

	err := env.manager.DistributeRewards(testAgent, testIdentity, 10_000, 10_000)
	require.ErrorIs(t, err, minipool.ErrRewardIntervalNotMet)

	env.clock.Advance(2 * day)
	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 10_000, 10_000))

	// split(10_000, 15%): operator 5_750, liquid stakers 4_250
	mp := env.current(t)
	assert.Equal(t, uint64(5_750), mp.OperatorUnclaimedPartialReward)
	assert.Equal(t, uint64(4_250), mp.LiquidStakerUnclaimedPartialReward)
	assert.Equal(t, env.clock.Now(), mp.LastRewardTime)
	assert.Equal(t, uint64(5_750), env.vault.Balance())
	assert.Equal(t, uint64(4_250), env.pool.AccruedRewards())
	held, err := env.manager.HeldFunds()
	require.NoError(t, err)
	assert.Zero(t, held)

	// owner draws down the accumulated operator leg
	paid, err := env.manager.WithdrawPartialRewards(testOwner, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_750), paid)
	assert.Zero(t, env.vault.Balance())
	mp = env.current(t)
	assert.Zero(t, mp.OperatorUnclaimedPartialReward)
	assert.Equal(t, uint64(5_750), mp.CumulativeRewardsWithdrawn)

	_, err = env.manager.WithdrawPartialRewards(testOwner, testIdentity)
	require.ErrorIs(t, err, minipool.ErrNothingOwed)
}

func TestDistributeZeroRewardSlashes(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Advance(2 * day)

	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 0, 0))

	// expected reward for 2 days at 10% on 1_000_000 pooled is 547; par price
	// means 547 collateral units seized
	mp := env.current(t)
	assert.Equal(t, uint64(547), mp.CollateralSlashAmt)
	balance, err := env.ledger.CollateralBalanceOf(testOwner)
	require.NoError(t, err)
	assert.Equal(t, collateral-547, balance)

	// no funds moved
	assert.Zero(t, env.vault.Balance())
	assert.Zero(t, env.pool.AccruedRewards())
	held, err := env.manager.HeldFunds()
	require.NoError(t, err)
	assert.Zero(t, held)
	assert.Equal(t, minipool.StatusStaking, mp.Status)
}

func TestSlashFailsClosedOnZeroPrice(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Advance(2 * day)
	env.oracle.SetPrice(0)

	err := env.manager.DistributeRewards(testAgent, testIdentity, 0, 0)
	require.ErrorIs(t, err, minipool.ErrZeroCollateralPrice)

	mp := env.current(t)
	assert.Zero(t, mp.CollateralSlashAmt)
	balance, err := env.ledger.CollateralBalanceOf(testOwner)
	require.NoError(t, err)
	assert.Equal(t, collateral, balance)
}

func TestSlashClampsToCollateral(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Advance(2 * day)

	// crash the price so the computed slash dwarfs the posted collateral
	env.oracle.SetPrice(1)
	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 0, 0))

	mp := env.current(t)
	assert.Equal(t, collateral, mp.CollateralSlashAmt)
	balance, err := env.ledger.CollateralBalanceOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestRecordStakingEnd(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Set(t0 + int64(stdDuration))
	endTime := env.clock.Now()

	err := env.manager.RecordStakingEnd(testAgent, testIdentity, t0, 100_000, 2_100_000)
	require.ErrorIs(t, err, minipool.ErrEndBeforeStart)
	mp := env.current(t)
	assert.Equal(t, minipool.StatusStaking, mp.Status, "failed settlement mutates nothing")
	assert.Zero(t, mp.TotalReportedReward)

	err = env.manager.RecordStakingEnd(testAgent, testIdentity, endTime, 100_000, 2_099_999)
	require.ErrorIs(t, err, minipool.ErrInsufficientHeldFunds)

	err = env.manager.RecordStakingEnd(testAgent, testIdentity, endTime+100, 100_000, 2_100_000)
	require.ErrorIs(t, err, minipool.ErrFutureTimestamp)

	require.NoError(t, env.manager.RecordStakingEnd(testAgent, testIdentity, endTime, 100_000, 2_100_000))
	mp = env.current(t)
	assert.Equal(t, minipool.StatusWithdrawable, mp.Status)
	assert.Equal(t, uint64(100_000), mp.TotalReportedReward)
	// split(100_000, 15%): operator 57_500, liquid stakers 42_500
	assert.Equal(t, uint64(57_500), mp.OperatorRewardAmt)
	assert.Equal(t, uint64(42_500), mp.LiquidStakerRewardAmt)

	assert.Equal(t, uint64(1_057_500), env.vault.Balance())
	available, err := env.pool.AmountAvailableForStaking()
	require.NoError(t, err)
	assert.Equal(t, poolDeposits+42_500, available)
	liquid, err := env.manager.LiquidStakedTotal()
	require.NoError(t, err)
	assert.Zero(t, liquid)
	held, err := env.manager.HeldFunds()
	require.NoError(t, err)
	assert.Zero(t, held)
	assigned, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, assigned)
}

func TestRecordStakingEndZeroRewardSlashes(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Set(t0 + int64(stdDuration))

	require.NoError(t, env.manager.RecordStakingEnd(testAgent, testIdentity, env.clock.Now(), 0, 2_000_000))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusWithdrawable, mp.Status)
	assert.Zero(t, mp.OperatorRewardAmt)
	assert.Zero(t, mp.LiquidStakerRewardAmt)
	// 30 days at 10% on 1_000_000 pooled -> 8_219 expected, par price
	assert.Equal(t, uint64(8_219), mp.CollateralSlashAmt)

	// principal returned intact on both sides
	assert.Equal(t, stdCapital, env.vault.Balance())
	available, err := env.pool.AmountAvailableForStaking()
	require.NoError(t, err)
	assert.Equal(t, poolDeposits, available)
}

func TestWithdrawFinalFunds(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Set(t0 + int64(stdDuration))
	require.NoError(t, env.manager.RecordStakingEnd(testAgent, testIdentity, env.clock.Now(), 100_000, 2_100_000))

	_, err := env.manager.WithdrawFinalFunds("stranger", testIdentity)
	require.ErrorIs(t, err, minipool.ErrNotOwner)

	paid, err := env.manager.WithdrawFinalFunds(testOwner, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_057_500), paid)

	mp := env.current(t)
	assert.Equal(t, minipool.StatusFinished, mp.Status)
	assert.Zero(t, env.vault.Balance())
	staked, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, staked)

	_, err = env.manager.WithdrawFinalFunds(testOwner, testIdentity)
	assert.True(t, minipool.IsInvalidTransition(err))
}

func TestRecordStakingError(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.launch(t)

	err := env.manager.RecordStakingError(testAgent, testIdentity, 1_999_999, "NODE_LOST")
	require.ErrorIs(t, err, minipool.ErrIncorrectRefundAmount)

	require.NoError(t, env.manager.RecordStakingError(testAgent, testIdentity, 2_000_000, "NODE_LOST"))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusError, mp.Status)
	assert.Equal(t, "NODE_LOST", mp.ErrorCode)
	assert.Zero(t, mp.TotalReportedReward)

	// both sides refunded
	assert.Equal(t, stdCapital, env.vault.Balance())
	available, err := env.pool.AmountAvailableForStaking()
	require.NoError(t, err)
	assert.Equal(t, poolDeposits, available)
	liquid, err := env.manager.LiquidStakedTotal()
	require.NoError(t, err)
	assert.Zero(t, liquid)

	// the Error state drains through the normal final withdrawal
	paid, err := env.manager.WithdrawFinalFunds(testOwner, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, stdCapital, paid)
	assert.Equal(t, minipool.StatusFinished, env.current(t).Status)
}

func TestRecordStakingErrorAfterStakingStart(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)

	require.NoError(t, env.manager.RecordStakingError(testAgent, testIdentity, 2_000_000, "NODE_LOST"))
	mp := env.current(t)
	assert.Equal(t, minipool.StatusError, mp.Status)

	// both ledger figures reversed, not just the assignment
	assigned, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, assigned)
	validating, err := env.ledger.ValidatingOf(testOwner)
	require.NoError(t, err)
	assert.Zero(t, validating)
}

func TestDistributeZeroRewardConsumesInterval(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Advance(2 * day)

	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 0, 0))
	assert.Equal(t, uint64(547), env.current(t).CollateralSlashAmt)

	// an immediate re-report cannot charge the same window again
	err := env.manager.DistributeRewards(testAgent, testIdentity, 0, 0)
	require.ErrorIs(t, err, minipool.ErrRewardIntervalNotMet)
	assert.Equal(t, uint64(547), env.current(t).CollateralSlashAmt)

	// a fresh interval is charged on its own elapsed time only
	env.clock.Advance(2 * day)
	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 0, 0))
	assert.Equal(t, uint64(1094), env.current(t).CollateralSlashAmt)
}

func TestDistributeZeroRewardRejectsForwarded(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Advance(2 * day)

	err := env.manager.DistributeRewards(testAgent, testIdentity, 0, 500)
	require.ErrorIs(t, err, minipool.ErrUnexpectedForwardedFunds)

	mp := env.current(t)
	assert.Zero(t, mp.CollateralSlashAmt)
	held, err := env.manager.HeldFunds()
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestCancelRollsBackLedgerOnVaultFailure(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.admit(t)
	env.clock.Advance(env.params.CancelMoratorium())

	// drain the vault so the refund withdrawal must fail
	require.NoError(t, env.vault.WithdrawCapital(stdCapital))
	require.Error(t, env.manager.CancelMinipool(testOwner, testIdentity))

	// the ledger state and reward clock survive the failed attempt
	assert.Equal(t, minipool.StatusPrelaunch, env.current(t).Status)
	assigned, err := env.ledger.AssignedOf(testOwner)
	require.NoError(t, err)
	assert.Equal(t, stdCapital, assigned)
	eligible, err := env.ledger.RewardEligibilityStart(testOwner)
	require.NoError(t, err)
	assert.Equal(t, t0, eligible)

	// restore the funds and the cancellation goes through cleanly
	require.NoError(t, env.vault.DepositCapital(stdCapital))
	require.NoError(t, env.manager.CancelMinipool(testOwner, testIdentity))
	assert.Equal(t, minipool.StatusCanceled, env.current(t).Status)
}

func TestCycleRenewal(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)

	// settle well before the scheduled end so the next cycle still fits the
	// renewal window
	env.clock.Set(t0 + 17*day)
	require.NoError(t, env.manager.RecordStakingEndThenMaybeCycle(testAgent, testIdentity, env.clock.Now(), 100_000, 2_100_000))

	mp := env.current(t)
	assert.Equal(t, minipool.StatusLaunched, mp.Status, "settled then immediately relaunched")
	// compounded by the liquid-staker reward leg, mirrored on the pooled side
	assert.Equal(t, uint64(1_042_500), mp.OperatorCapital)
	assert.Equal(t, uint64(1_042_500), mp.LiquidStakerCapital)
	assert.Equal(t, stdCapital, mp.OperatorCapitalInitial)
	assert.Equal(t, t0, mp.InitialStartTime, "renewal never resets the first-ever start")
	assert.Zero(t, mp.StartTime)
	assert.Zero(t, mp.TotalReportedReward)
	assert.Empty(t, mp.ErrorCode)

	liquid, err := env.manager.LiquidStakedTotal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_042_500), liquid)
}

func TestCycleRenewalNarrowMiss(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)

	// next cycle would overshoot the tolerance window by less than one cycle
	env.clock.Set(t0 + 24*day)
	require.NoError(t, env.manager.RecordStakingEndThenMaybeCycle(testAgent, testIdentity, env.clock.Now(), 100_000, 2_100_000))

	mp := env.current(t)
	assert.Equal(t, minipool.StatusWithdrawable, mp.Status)
	assert.Equal(t, minipool.RenewalMissedCode, mp.ErrorCode)
}

func TestCycleRenewalFarMiss(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)

	// far past the window; settled plainly, no diagnostic code
	env.clock.Set(t0 + 45*day)
	require.NoError(t, env.manager.RecordStakingEndThenMaybeCycle(testAgent, testIdentity, env.clock.Now(), 100_000, 2_100_000))

	mp := env.current(t)
	assert.Equal(t, minipool.StatusWithdrawable, mp.Status)
	assert.Empty(t, mp.ErrorCode)
}

func TestRecordReuseAfterFinish(t *testing.T) {
	env := newTestEnv(t, poolDeposits)
	env.startStaking(t, t0)
	env.clock.Set(t0 + int64(stdDuration))
	require.NoError(t, env.manager.RecordStakingEnd(testAgent, testIdentity, env.clock.Now(), 100_000, 2_100_000))
	_, err := env.manager.WithdrawFinalFunds(testOwner, testIdentity)
	require.NoError(t, err)

	mp, err := env.manager.CreateMinipool(testOwner, testIdentity, stdDuration, stdFee, stdCapital, stdCapital)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), mp.Index, "identity keeps its index across reuse")
	assert.Equal(t, minipool.StatusPrelaunch, mp.Status)
	assert.Zero(t, mp.InitialStartTime, "fresh admission starts a new arrangement")
	assert.Equal(t, stdCapital, mp.OperatorCapitalInitial)

	count, err := env.manager.MinipoolCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestAdvanceRewardCycle(t *testing.T) {
	env := newTestEnv(t, poolDeposits)

	cursor, err := env.manager.AdvanceRewardCycle()
	require.NoError(t, err)
	assert.Equal(t, t0+env.params.CycleDuration(), cursor)

	// before the cursor passes, nothing moves
	env.clock.Advance(day)
	cursor, err = env.manager.AdvanceRewardCycle()
	require.NoError(t, err)
	assert.Equal(t, t0+env.params.CycleDuration(), cursor)

	// jump several cycles; the cursor lands on the next boundary after now
	env.clock.Set(t0 + 3*env.params.CycleDuration() + 1)
	cursor, err = env.manager.AdvanceRewardCycle()
	require.NoError(t, err)
	assert.Equal(t, t0+4*env.params.CycleDuration(), cursor)
}

func TestFundConservation(t *testing.T) {
	env := newTestEnv(t, poolDeposits)

	// everything the system holds, regardless of which bucket it sits in
	internal := func() uint64 {
		t.Helper()
		available, err := env.pool.AmountAvailableForStaking()
		require.NoError(t, err)
		held, err := env.manager.HeldFunds()
		require.NoError(t, err)
		return env.vault.Balance() + available + held
	}

	require.Equal(t, poolDeposits, internal())

	env.admit(t)
	require.Equal(t, poolDeposits+stdCapital, internal())

	// claiming deploys both capital legs to the external venue
	require.NoError(t, env.manager.ClaimAndInitiateStaking(testAgent, testIdentity))
	deployed := 2 * stdCapital
	require.Equal(t, poolDeposits+stdCapital-deployed, internal())

	start := t0 + day
	env.clock.Set(start)
	require.NoError(t, env.manager.RecordStakingStart(testAgent, testIdentity, start))
	require.Equal(t, poolDeposits+stdCapital-deployed, internal())

	// a periodic distribution covered fully by the forwarded amount
	env.clock.Set(start + day)
	require.NoError(t, env.manager.DistributeRewards(testAgent, testIdentity, 10_000, 10_000))
	require.Equal(t, poolDeposits+stdCapital-deployed+10_000, internal())

	// settlement returns principal plus the final reward
	end := start + int64(stdDuration)
	env.clock.Set(end)
	require.NoError(t, env.manager.RecordStakingEnd(testAgent, testIdentity, end, 100_000, deployed+100_000))
	require.Equal(t, poolDeposits+stdCapital+10_000+100_000, internal())

	// owner withdrawals are the only outflows
	partial, err := env.manager.WithdrawPartialRewards(testOwner, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_750), partial)
	final, err := env.manager.WithdrawFinalFunds(testOwner, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, stdCapital+uint64(57_500), final)
	require.Equal(t, poolDeposits+stdCapital+10_000+100_000-partial-final, internal())
}

func TestGuardsRejectUnknownIdentity(t *testing.T) {
	env := newTestEnv(t, poolDeposits)

	err := env.manager.ClaimAndInitiateStaking(testAgent, "ghost")
	require.ErrorIs(t, err, minipool.ErrMinipoolNotFound)
	err = env.manager.CancelMinipool(testOwner, "ghost")
	require.ErrorIs(t, err, minipool.ErrMinipoolNotFound)
	_, err = env.manager.WithdrawFinalFunds(testOwner, "ghost")
	require.ErrorIs(t, err, minipool.ErrMinipoolNotFound)
}
