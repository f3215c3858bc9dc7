// Package gas meters execution and storage and produces the charged
// GasSummary of a transaction.
package gas

import (
	"sort"
	"sync"
)

// Tier prices instructions once the executed count reaches Threshold
type Tier struct {
	Threshold uint64
	Cost      uint64
}

// ProtocolConfig holds the cost parameters of one protocol version.
// Computation costs are in computation units and are multiplied by the
// gas price; storage costs are in storage units multiplied by the storage
// price.
type ProtocolConfig struct {
	Version uint64

	InstructionTiers []Tier
	NativeBaseCost   uint64
	NativeUnitCost   uint64
	CommandBaseCost  uint64

	ObjectReadPerByte uint64

	StoragePerByte    uint64
	StoragePrice      uint64
	StorageRebateRate uint64 // basis points

	MinTransactionCost uint64
	RoundingStep       uint64
	MaxGasBudget       uint64
}

// InstructionCost returns the price of the next instruction after
// executed instructions have run
func (c *ProtocolConfig) InstructionCost(executed uint64) uint64 {
	cost := uint64(1)

	for _, t := range c.InstructionTiers {
		if executed < t.Threshold {
			break
		}

		cost = t.Cost
	}

	return cost
}

// RoundUp rounds computation units up to the rounding step
func (c *ProtocolConfig) RoundUp(units uint64) uint64 {
	if c.RoundingStep <= 1 {
		return units
	}

	if rem := units % c.RoundingStep; rem != 0 {
		units += c.RoundingStep - rem
	}

	return units
}

var (
	registryOnce sync.Once
	registry     []*ProtocolConfig
)

func baseConfig() ProtocolConfig {
	return ProtocolConfig{
		Version: 1,
		InstructionTiers: []Tier{
			{Threshold: 0, Cost: 1},
			{Threshold: 20_000, Cost: 2},
			{Threshold: 50_000, Cost: 10},
			{Threshold: 100_000, Cost: 50},
			{Threshold: 200_000, Cost: 100},
			{Threshold: 10_000_000, Cost: 1_000},
		},
		NativeBaseCost:     10,
		NativeUnitCost:     2,
		CommandBaseCost:    10,
		ObjectReadPerByte:  1,
		StoragePerByte:     100,
		StoragePrice:       76,
		StorageRebateRate:  9_900,
		MinTransactionCost: 1_000,
		RoundingStep:       1_000,
		MaxGasBudget:       50_000_000_000,
	}
}

func loadRegistry() {
	v1 := baseConfig()

	// later protocol versions charge reads at a higher rate and raise the
	// budget ceiling
	v48 := baseConfig()
	v48.Version = 48
	v48.ObjectReadPerByte = 15
	v48.MaxGasBudget = 50_000_000_000_000

	registry = []*ProtocolConfig{&v1, &v48}

	sort.Slice(registry, func(i, j int) bool {
		return registry[i].Version < registry[j].Version
	})
}

// Config returns the parameters in effect at a protocol version: the
// newest registered entry not above it. Version zero selects the newest.
func Config(version uint64) *ProtocolConfig {
	registryOnce.Do(loadRegistry)

	if version == 0 {
		return registry[len(registry)-1]
	}

	selected := registry[0]

	for _, c := range registry {
		if c.Version > version {
			break
		}

		selected = c
	}

	return selected
}
