package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/ledger"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/risk"
	"paperdesk/store"
)

func defaultRiskParams() risk.Params {
	return risk.Params{
		Capital:             100_000,
		RiskPct:             1,
		StopLossPct:         2,
		TakeProfitPct:       4,
		MaxQtyPerOrder:      10_000,
		MaxPositionPerTrade: 500,
		MinStopDistancePct:  0.1,
		MinStopLossPct:      0.5,
	}
}

func defaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		CooldownTicks:    5,
		CooldownDuration: 30 * time.Second,
		MaxOpenPositions: 10,
		MaxExposurePct:   80,
		Risk:             defaultRiskParams(),
	}
}

func newTestCapital(t *testing.T, st store.Store, initial, lossLimit float64) *ledger.Capital {
	t.Helper()
	c, err := ledger.NewCapital(st, "acct-1", initial, lossLimit, logger.NewNop())
	require.NoError(t, err)
	return c
}

func newTestValidator(t *testing.T, st store.Store) (*Validator, *ledger.Capital) {
	t.Helper()
	capital := newTestCapital(t, st, 100_000, 50_000)
	v := NewValidator(defaultValidatorConfig(), capital, logger.NewNop())
	return v, capital
}

func buySignal(symbol string, price float64) market.Signal {
	return market.Signal{Action: market.Buy, Symbol: symbol, Price: price, Strategy: "test"}
}

func TestValidatorApprovesCleanSignal(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))
	assert.Equal(t, "", v.ValidateSignal(buySignal("ACME", 100)))
}

func TestKillSwitchWinsOverEverything(t *testing.T) {
	t.Parallel()
	v, capital := newTestValidator(t, newControllerStore(t))

	// Stack several violations; kill switch must still be the reason.
	capital.SetKillSwitch(true)
	require.NoError(t, capital.Halt())
	sig := buySignal("ACME", 100)
	assert.Equal(t, ReasonKillSwitch, v.ValidateSignal(sig))
	assert.Equal(t, ReasonKillSwitch, v.ValidateSignal(sig)) // not even duplicate_signal

	capital.SetKillSwitch(false)
	assert.Equal(t, ReasonDailyLossHalted, v.ValidateSignal(sig))
}

func TestDuplicateSignalRejected(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	sig := buySignal("ACME", 100)
	assert.Equal(t, "", v.ValidateSignal(sig))
	assert.Equal(t, ReasonDuplicateSignal, v.ValidateSignal(sig))

	// Same symbol at a different price is a different key.
	assert.Equal(t, "", v.ValidateSignal(buySignal("ACME", 101)))
}

func TestTickCooldown(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	require.Equal(t, "", v.ValidateSignal(buySignal("ACME", 100)))
	v.RecordSignal("ACME")

	// Within the 5-tick window.
	v.Tick()
	assert.Equal(t, ReasonCooldown, v.ValidateSignal(buySignal("ACME", 101)))

	for i := 0; i < 5; i++ {
		v.Tick()
	}
	// Tick cooldown elapsed, wall-clock cooldown still holds.
	assert.Equal(t, ReasonTimeCooldown, v.ValidateSignal(buySignal("ACME", 102)))
}

func TestWallClockCooldown(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	now := time.Now()
	v.now = func() time.Time { return now }

	require.Equal(t, "", v.ValidateSignal(buySignal("ACME", 100)))
	v.RecordSignal("ACME")
	for i := 0; i < 6; i++ {
		v.Tick()
	}

	now = now.Add(29 * time.Second)
	assert.Equal(t, ReasonTimeCooldown, v.ValidateSignal(buySignal("ACME", 101)))

	now = now.Add(2 * time.Second)
	assert.Equal(t, "", v.ValidateSignal(buySignal("ACME", 102)))
}

func TestCooldownIsPerSymbol(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	require.Equal(t, "", v.ValidateSignal(buySignal("ACME", 100)))
	v.RecordSignal("ACME")
	v.Tick()

	assert.Equal(t, "", v.ValidateSignal(buySignal("BETA", 100)))
}

func TestAlreadyHoldingSameDirection(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	v, capital := newTestValidator(t, st)

	_, err := capital.ApplyFill("ACME", market.Buy, 100, 50)
	require.NoError(t, err)

	assert.Equal(t, "already_buy_ACME", v.ValidateSignal(buySignal("ACME", 100)))

	// The opposite direction is allowed: it reduces or reverses.
	sell := market.Signal{Action: market.Sell, Symbol: "ACME", Price: 100}
	assert.Equal(t, "", v.ValidateSignal(sell))
}

func TestMaxOpenPositionsOnlyForNewSymbols(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	capital := newTestCapital(t, st, 1_000_000, 0)
	cfg := defaultValidatorConfig()
	cfg.MaxOpenPositions = 2
	cfg.Risk.Capital = 1_000_000
	v := NewValidator(cfg, capital, logger.NewNop())

	_, err := capital.ApplyFill("ACME", market.Buy, 10, 50)
	require.NoError(t, err)
	_, err = capital.ApplyFill("BETA", market.Buy, 10, 50)
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxOpenPositions, v.ValidateSignal(buySignal("GAMA", 100)))

	// Closing an existing symbol is still allowed at the cap.
	sell := market.Signal{Action: market.Sell, Symbol: "ACME", Price: 55}
	assert.Equal(t, "", v.ValidateSignal(sell))
}

func TestNoAvailableCapital(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	capital := newTestCapital(t, st, 100_000, 0)
	cfg := defaultValidatorConfig()
	cfg.MaxExposurePct = 200 // keep exposure out of the way
	v := NewValidator(cfg, capital, logger.NewNop())

	_, err := capital.ApplyFill("ACME", market.Buy, 1000, 100)
	require.NoError(t, err)

	assert.Equal(t, ReasonNoCapital, v.ValidateSignal(buySignal("BETA", 100)))
}

func TestMaxExposure(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	capital := newTestCapital(t, st, 100_000, 0)
	v := NewValidator(defaultValidatorConfig(), capital, logger.NewNop())

	// 80% of initial capital in margin.
	_, err := capital.ApplyFill("ACME", market.Buy, 800, 100)
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxExposure, v.ValidateSignal(buySignal("BETA", 100)))
}

func TestClampedQuantityZero(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	capital := newTestCapital(t, st, 100_000, 0)
	cfg := defaultValidatorConfig()
	v := NewValidator(cfg, capital, logger.NewNop())

	// Price far beyond available capital sizes to zero.
	assert.Equal(t, ReasonZeroQuantity, v.ValidateSignal(buySignal("ACME", 2_000_000)))
}

func TestValidateManualOrder(t *testing.T) {
	t.Parallel()
	v, capital := newTestValidator(t, newControllerStore(t))

	assert.Equal(t, "", v.ValidateManualOrder("ACME", market.Buy, 100, 50))
	assert.Equal(t, ReasonInvalidQuantity, v.ValidateManualOrder("ACME", market.Buy, 0, 50))
	assert.Equal(t, ReasonQtyExceedsMax, v.ValidateManualOrder("ACME", market.Buy, 20_000, 50))
	assert.Equal(t, ReasonInvalidPrice, v.ValidateManualOrder("ACME", market.Buy, 100, -1))

	capital.SetKillSwitch(true)
	assert.Equal(t, ReasonKillSwitch, v.ValidateManualOrder("ACME", market.Buy, 100, 50))
}

func TestManualOrderSkipsCooldown(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	require.Equal(t, "", v.ValidateSignal(buySignal("ACME", 100)))
	v.RecordSignal("ACME")
	v.Tick()

	// Strategy path is cooling down; the manual path is not.
	assert.Equal(t, ReasonCooldown, v.ValidateSignal(buySignal("ACME", 101)))
	assert.Equal(t, "", v.ValidateManualOrder("ACME", market.Buy, 100, 101))
}

func TestSizeOrderScenario(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t, newControllerStore(t))

	// capital=100000, risk 1%, SL 2%, price 100: floor(1000/2)=500,
	// within the 500 per-trade cap.
	assert.Equal(t, int64(500), v.SizeOrder(100))
}

func TestSizeOrderUsesLiveAvailableCapital(t *testing.T) {
	t.Parallel()
	st := newControllerStore(t)
	v, capital := newTestValidator(t, st)

	// Tie up most of the book: available drops to 50500.
	_, err := capital.ApplyFill("ACME", market.Buy, 495, 100)
	require.NoError(t, err)
	require.Equal(t, 50_500.0, capital.AvailableCapital())

	// Risk 1% of 50500 over a 2-per-share stop: floor(505/2)=252. Sizing
	// against the configured starting capital would still say 500.
	assert.Equal(t, int64(252), v.SizeOrder(100))
}
