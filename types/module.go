package types

import (
	"fmt"
	"strings"
)

// ModuleID identifies a module by its package address and name
type ModuleID struct {
	Address Address
	Name    string
}

func NewModuleID(addr Address, name string) ModuleID {
	return ModuleID{Address: addr, Name: name}
}

// ParseModuleID parses "addr::name"
func ParseModuleID(s string) (ModuleID, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) != 2 {
		return ModuleID{}, fmt.Errorf("%w: module id %q", ErrMalformedTypeTag, s)
	}

	addr, err := ParseAddress(parts[0])
	if err != nil {
		return ModuleID{}, err
	}

	if !IsValidIdentifier(parts[1]) {
		return ModuleID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, parts[1])
	}

	return ModuleID{Address: addr, Name: parts[1]}, nil
}

func (m ModuleID) String() string {
	return m.Address.String() + "::" + m.Name
}

// Less orders by address, then by name
func (m ModuleID) Less(o ModuleID) bool {
	if m.Address != o.Address {
		return m.Address.Less(o.Address)
	}

	return m.Name < o.Name
}

func (m ModuleID) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ModuleID) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleID(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

// ContextError attaches location context to a decoding or typing failure
type ContextError struct {
	Module     string
	Function   string
	TypeName   string
	ParamIndex int // -1 when not applicable
	Err        error
}

func NewContextError(err error) *ContextError {
	return &ContextError{ParamIndex: -1, Err: err}
}

func (e *ContextError) Error() string {
	var parts []string

	if e.Module != "" {
		parts = append(parts, "module "+e.Module)
	}

	if e.Function != "" {
		parts = append(parts, "function "+e.Function)
	}

	if e.TypeName != "" {
		parts = append(parts, "type "+e.TypeName)
	}

	if e.ParamIndex >= 0 {
		parts = append(parts, fmt.Sprintf("param %d", e.ParamIndex))
	}

	if len(parts) == 0 {
		return e.Err.Error()
	}

	return strings.Join(parts, ", ") + ": " + e.Err.Error()
}

func (e *ContextError) Unwrap() error {
	return e.Err
}
