package vm

import "github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"

// GasMeter is charged before every instruction and native call. Returning
// an error wrapping ErrOutOfGas aborts execution with GasExhaustion.
type GasMeter interface {
	ChargeInstruction(op bytecode.Opcode) error
	ChargeNative(function string, units uint64) error
}

// UnmeteredGasMeter never runs out
type UnmeteredGasMeter struct{}

func (UnmeteredGasMeter) ChargeInstruction(bytecode.Opcode) error {
	return nil
}

func (UnmeteredGasMeter) ChargeNative(string, uint64) error {
	return nil
}
