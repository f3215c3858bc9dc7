package gas

import (
	"math"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(1), Config(1).Version)
	assert.Equal(t, uint64(1), Config(47).Version)
	assert.Equal(t, uint64(48), Config(48).Version)
	assert.Equal(t, uint64(48), Config(70).Version)
	assert.Equal(t, uint64(48), Config(0).Version)
	assert.Same(t, Config(50), Config(60))
}

func TestInstructionTiers(t *testing.T) {
	t.Parallel()

	cfg := Config(1)

	assert.Equal(t, uint64(1), cfg.InstructionCost(0))
	assert.Equal(t, uint64(1), cfg.InstructionCost(19_999))
	assert.Equal(t, uint64(2), cfg.InstructionCost(20_000))
	assert.Equal(t, uint64(1_000), cfg.InstructionCost(20_000_000))

	assert.Equal(t, uint64(1_000), cfg.RoundUp(1))
	assert.Equal(t, uint64(1_000), cfg.RoundUp(1_000))
	assert.Equal(t, uint64(2_000), cfg.RoundUp(1_001))
}

func TestMeterExhaustion(t *testing.T) {
	t.Parallel()

	m := NewMeter(Config(1), 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.ChargeInstruction(bytecode.OpRet))
	}

	err := m.ChargeInstruction(bytecode.OpRet)
	assert.ErrorIs(t, err, vm.ErrOutOfGas)
	assert.Equal(t, uint64(3), m.Used())
	assert.True(t, m.Exhausted())
	assert.Equal(t, uint64(4), m.Instructions())

	n := NewMeter(Config(1), 100)
	require.NoError(t, n.ChargeNative("0x2::coin::split", 3))
	assert.Equal(t, uint64(16), n.Used())
	assert.Equal(t, uint64(1), n.NativeCalls())
}

func TestChargerBudget(t *testing.T) {
	t.Parallel()

	cfg := Config(1)

	_, err := NewCharger(cfg, 1_000, 999_999)
	assert.ErrorIs(t, err, ErrBudgetTooLow)

	_, err = NewCharger(cfg, 1_000, cfg.MaxGasBudget+1)
	assert.ErrorIs(t, err, ErrBudgetTooHigh)

	// a budget equal to the minimum cost is accepted and fully used
	c, err := NewCharger(cfg, 1_000, 1_000_000)
	require.NoError(t, err)

	summary := c.Summary()
	assert.Equal(t, uint64(1_000_000), summary.ComputationCost)
	assert.Equal(t, uint64(0), summary.StorageCost)
	assert.Equal(t, summary.ComputationCost, summary.Total)
}

func TestChargerPriceOverflow(t *testing.T) {
	t.Parallel()

	cfg := Config(1)

	// the minimum cost at this price wraps past zero
	price := math.MaxUint64/cfg.MinTransactionCost + 1

	_, err := NewCharger(cfg, price, 1_000_000)
	assert.ErrorIs(t, err, ErrPriceTooHigh)

	assert.Equal(t, uint64(math.MaxUint64), mulSat(math.MaxUint64, 2))
	assert.Equal(t, uint64(math.MaxUint64), mulSat(1<<32, 1<<32))
	assert.Equal(t, uint64(6), mulSat(2, 3))
	assert.Equal(t, uint64(0), mulSat(0, math.MaxUint64))
}

func TestChargerSummary(t *testing.T) {
	t.Parallel()

	cfg := Config(1)
	id := types.MustParseAddress("0x1d")

	c, err := NewCharger(cfg, 1_000, 50_000_000)
	require.NoError(t, err)

	for i := 0; i < 1_500; i++ {
		require.NoError(t, c.Meter().ChargeInstruction(bytecode.OpNop))
	}

	c.Tracker().Read(id, 40)
	c.Tracker().Write(id, 50, 40)

	// 1500 instructions plus 40 read bytes round up to 2000 units
	assert.Equal(t, uint64(2_000), c.ComputationUnits())

	summary := c.Summary()
	assert.Equal(t, uint64(2_000_000), summary.ComputationCost)
	assert.Equal(t, uint64(50*100*76), summary.StorageCost)
	assert.Equal(t, uint64(40*100*76*9_900/10_000), summary.StorageRebate)
	assert.Equal(t, summary.ComputationCost+summary.StorageCost-summary.StorageRebate, summary.Total)
	assert.Equal(t, uint64(1_000_000), c.Tolerance())

	c.Tracker().Reset()
	assert.Equal(t, uint64(0), c.Tracker().WrittenBytes())
	assert.Equal(t, uint64(40), c.Tracker().ReadBytes())

	c.Tracker().Delete(id, 40)
	assert.Equal(t, 1, c.Tracker().DeleteCount())
}

func TestChargerCapsAtBudget(t *testing.T) {
	t.Parallel()

	c, err := NewCharger(Config(1), 1_000, 1_500_000)
	require.NoError(t, err)

	var chargeErr error
	for chargeErr == nil {
		chargeErr = c.Meter().ChargeInstruction(bytecode.OpNop)
	}

	assert.ErrorIs(t, chargeErr, vm.ErrOutOfGas)
	assert.Equal(t, uint64(1_500), c.ComputationUnits())
	assert.Equal(t, uint64(1_500_000), c.Summary().ComputationCost)
}
