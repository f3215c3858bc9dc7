package gas

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

var _ vm.GasMeter = &Meter{}

// Meter charges computation units for instructions and native calls and
// fails once the limit is crossed
type Meter struct {
	cfg *ProtocolConfig

	used  uint64
	limit uint64

	instructions uint64
	nativeCalls  uint64
}

// NewMeter constructs a Meter allowing limit computation units
func NewMeter(cfg *ProtocolConfig, limit uint64) *Meter {
	return &Meter{cfg: cfg, limit: limit}
}

func (m *Meter) ChargeInstruction(bytecode.Opcode) error {
	cost := m.cfg.InstructionCost(m.instructions)
	m.instructions++

	return m.Charge(cost)
}

func (m *Meter) ChargeNative(_ string, units uint64) error {
	m.nativeCalls++

	return m.Charge(m.cfg.NativeBaseCost + units*m.cfg.NativeUnitCost)
}

// Charge deducts units. Crossing the limit pins usage at the limit.
func (m *Meter) Charge(units uint64) error {
	m.used += units
	if m.used > m.limit {
		m.used = m.limit

		return fmt.Errorf("%w: limit %d computation units", vm.ErrOutOfGas, m.limit)
	}

	return nil
}

func (m *Meter) Used() uint64 {
	return m.used
}

func (m *Meter) Limit() uint64 {
	return m.limit
}

func (m *Meter) Exhausted() bool {
	return m.used >= m.limit
}

func (m *Meter) Instructions() uint64 {
	return m.instructions
}

func (m *Meter) NativeCalls() uint64 {
	return m.nativeCalls
}
