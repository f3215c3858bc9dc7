package types

// DynamicFieldInfo describes one child object attached to a parent
type DynamicFieldInfo struct {
	ChildID    ObjectID `json:"child_id"`
	Version    uint64   `json:"version"`
	KeyBytes   []byte   `json:"key_bytes"`
	ChildType  TypeTag  `json:"child_type"`
	Checkpoint *uint64  `json:"checkpoint,omitempty"`
}

// KeyType returns the key type of a 0x2::dynamic_field::Field child
func (d DynamicFieldInfo) KeyType() (TypeTag, bool) {
	if d.ChildType.Kind != TypeStruct || d.ChildType.Struct == nil {
		return TypeTag{}, false
	}

	st := d.ChildType.Struct
	if !st.Is(FrameworkAddress, "dynamic_field", "Field") || len(st.TypeParams) != 2 {
		return TypeTag{}, false
	}

	return st.TypeParams[0], true
}

// ValueType returns the value type of a 0x2::dynamic_field::Field child
func (d DynamicFieldInfo) ValueType() (TypeTag, bool) {
	if _, ok := d.KeyType(); !ok {
		return TypeTag{}, false
	}

	return d.ChildType.Struct.TypeParams[1], true
}
