package vm

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// NativeFunc implements a native Move function. Arguments arrive in
// declaration order; references are *Ref.
type NativeFunc func(ctx *NativeContext, tyArgs []types.TypeTag, args []Value) ([]Value, error)

// NativeTable binds native functions by NativeKey
type NativeTable map[string]NativeFunc

// NativeKey names a native function, e.g. 0x2::object::new
func NativeKey(addr types.Address, module, function string) string {
	return addr.ShortString() + "::" + module + "::" + function
}

// Add binds fn under addr::module::function
func (t NativeTable) Add(addr types.Address, module, function string, fn NativeFunc) {
	t[NativeKey(addr, module, function)] = fn
}

// Merge copies every binding of other into t
func (t NativeTable) Merge(other NativeTable) {
	for k, v := range other {
		t[k] = v
	}
}

// NativeContext gives natives access to the running VM
type NativeContext struct {
	vm       *VM
	module   types.ModuleID
	function string
	caller   types.ModuleID
}

// Module is the module declaring the native
func (c *NativeContext) Module() types.ModuleID {
	return c.module
}

func (c *NativeContext) Function() string {
	return c.function
}

// Caller is the module whose code invoked the native. It equals Module
// when the native is called directly by the host.
func (c *NativeContext) Caller() types.ModuleID {
	return c.caller
}

func (c *NativeContext) Serialize(v Value) ([]byte, error) {
	return Serialize(v)
}

func (c *NativeContext) Deserialize(t types.TypeTag, b []byte) (Value, error) {
	return c.vm.Deserialize(t, b)
}

func (c *NativeContext) Abilities(t types.TypeTag) (bytecode.AbilitySet, error) {
	return c.vm.Abilities(t)
}

// Charge bills extra units for work proportional to input size
func (c *NativeContext) Charge(units uint64) error {
	return c.vm.meter.ChargeNative(NativeKey(c.module.Address, c.module.Name, c.function), units)
}
