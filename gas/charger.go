package gas

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

var (
	ErrBudgetTooLow  = errors.New("gas budget below minimum transaction cost")
	ErrBudgetTooHigh = errors.New("gas budget above protocol maximum")
	ErrPriceTooHigh  = errors.New("gas price overflows the minimum transaction cost")
)

// mulSat multiplies and saturates at math.MaxUint64
func mulSat(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}

	return lo
}

// Charger composes the meter and the storage tracker of one transaction
type Charger struct {
	cfg    *ProtocolConfig
	price  uint64
	budget uint64

	meter   *Meter
	tracker *StorageTracker
}

// NewCharger checks the budget against the protocol bounds. The budget
// limits computation only.
func NewCharger(cfg *ProtocolConfig, price, budget uint64) (*Charger, error) {
	if price == 0 {
		price = 1
	}

	hi, minimum := bits.Mul64(cfg.MinTransactionCost, price)
	if hi != 0 {
		return nil, fmt.Errorf("%w: price %d", ErrPriceTooHigh, price)
	}

	if budget < minimum {
		return nil, fmt.Errorf("%w: budget %d, minimum %d", ErrBudgetTooLow, budget, minimum)
	}

	if budget > cfg.MaxGasBudget {
		return nil, fmt.Errorf("%w: budget %d, maximum %d", ErrBudgetTooHigh, budget, cfg.MaxGasBudget)
	}

	return &Charger{
		cfg:     cfg,
		price:   price,
		budget:  budget,
		meter:   NewMeter(cfg, budget/price),
		tracker: NewStorageTracker(),
	}, nil
}

func (c *Charger) Meter() *Meter {
	return c.meter
}

func (c *Charger) Tracker() *StorageTracker {
	return c.tracker
}

func (c *Charger) Config() *ProtocolConfig {
	return c.cfg
}

func (c *Charger) Price() uint64 {
	return c.price
}

func (c *Charger) Budget() uint64 {
	return c.budget
}

// ComputationUnits applies the read charge, the minimum floor and rounding
// to metered usage, capped at the budget
func (c *Charger) ComputationUnits() uint64 {
	units := c.meter.Used()
	if read := mulSat(c.tracker.ReadBytes(), c.cfg.ObjectReadPerByte); units > math.MaxUint64-read {
		units = math.MaxUint64
	} else {
		units += read
	}

	if units < c.cfg.MinTransactionCost {
		units = c.cfg.MinTransactionCost
	}

	units = c.cfg.RoundUp(units)

	if limit := c.meter.Limit(); units > limit {
		units = limit
	}

	return units
}

// Summary produces the charged cost of the transaction
func (c *Charger) Summary() types.GasSummary {
	computation := mulSat(c.ComputationUnits(), c.price)
	perByte := mulSat(c.cfg.StoragePerByte, c.cfg.StoragePrice)
	storage := mulSat(perByte, c.tracker.WrittenBytes())
	rebate := mulSat(mulSat(perByte, c.tracker.ReleasedBytes()), c.cfg.StorageRebateRate) / 10_000

	charged := computation + storage
	if charged < computation {
		charged = math.MaxUint64
	}

	var total uint64
	if charged > rebate {
		total = charged - rebate
	}

	return types.GasSummary{
		ComputationCost: computation,
		StorageCost:     storage,
		StorageRebate:   rebate,
		Total:           total,
	}
}

// Tolerance is the largest gas difference explained by rounding
func (c *Charger) Tolerance() uint64 {
	return mulSat(c.cfg.RoundingStep, c.price)
}
