package bytecode

import "fmt"

func outOfBounds(what string, idx uint64, n int) error {
	if idx >= uint64(n) {
		return fmt.Errorf("%w: %s %d of %d", ErrIndexOutOfBounds, what, idx, n)
	}

	return nil
}

// CheckBounds verifies that every index in the module points into its table
//
//nolint:gocognit,gocyclo
func (m *CompiledModule) CheckBounds() error {
	checks := []error{outOfBounds("self module handle", uint64(m.SelfHandle), len(m.ModuleHandles))}

	for _, h := range append(append([]ModuleHandle{}, m.ModuleHandles...), m.FriendDecls...) {
		checks = append(checks,
			outOfBounds("address", uint64(h.Address), len(m.AddressIdentifiers)),
			outOfBounds("identifier", uint64(h.Name), len(m.Identifiers)),
		)
	}

	for _, h := range m.StructHandles {
		checks = append(checks,
			outOfBounds("module handle", uint64(h.Module), len(m.ModuleHandles)),
			outOfBounds("identifier", uint64(h.Name), len(m.Identifiers)),
		)
	}

	for _, h := range m.FunctionHandles {
		checks = append(checks,
			outOfBounds("module handle", uint64(h.Module), len(m.ModuleHandles)),
			outOfBounds("identifier", uint64(h.Name), len(m.Identifiers)),
			outOfBounds("signature", uint64(h.Parameters), len(m.Signatures)),
			outOfBounds("signature", uint64(h.Return), len(m.Signatures)),
		)
	}

	for _, h := range m.FieldHandles {
		if err := outOfBounds("struct def", uint64(h.Owner), len(m.StructDefs)); err != nil {
			return err
		}

		checks = append(checks, outOfBounds("field", uint64(h.Field), len(m.StructDefs[h.Owner].Fields)))
	}

	for _, inst := range m.StructDefInsts {
		checks = append(checks,
			outOfBounds("struct def", uint64(inst.Def), len(m.StructDefs)),
			outOfBounds("signature", uint64(inst.TypeParameters), len(m.Signatures)),
		)
	}

	for _, inst := range m.FunctionInsts {
		checks = append(checks,
			outOfBounds("function handle", uint64(inst.Handle), len(m.FunctionHandles)),
			outOfBounds("signature", uint64(inst.TypeParameters), len(m.Signatures)),
		)
	}

	for _, inst := range m.FieldInsts {
		checks = append(checks,
			outOfBounds("field handle", uint64(inst.Handle), len(m.FieldHandles)),
			outOfBounds("signature", uint64(inst.TypeParameters), len(m.Signatures)),
		)
	}

	for _, sig := range m.Signatures {
		for _, tok := range sig {
			checks = append(checks, m.checkToken(tok))
		}
	}

	for _, c := range m.ConstantPool {
		checks = append(checks, m.checkToken(c.Type))
	}

	for _, def := range m.StructDefs {
		checks = append(checks, outOfBounds("struct handle", uint64(def.Handle), len(m.StructHandles)))

		for _, f := range def.Fields {
			checks = append(checks,
				outOfBounds("identifier", uint64(f.Name), len(m.Identifiers)),
				m.checkToken(f.Type),
			)
		}
	}

	for _, def := range m.FunctionDefs {
		checks = append(checks, outOfBounds("function handle", uint64(def.Handle), len(m.FunctionHandles)))

		if def.Code != nil {
			checks = append(checks,
				outOfBounds("signature", uint64(def.Code.Locals), len(m.Signatures)),
				m.checkCode(def.Code.Code),
			)
		}
	}

	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *CompiledModule) checkToken(tok SignatureToken) error {
	switch tok.Kind {
	case TokVector, TokReference, TokMutRef:
		return m.checkToken(*tok.Elem)
	case TokStruct:
		return outOfBounds("struct handle", uint64(tok.Handle), len(m.StructHandles))
	case TokStructInst:
		if err := outOfBounds("struct handle", uint64(tok.Handle), len(m.StructHandles)); err != nil {
			return err
		}

		for _, arg := range tok.TypeArgs {
			if err := m.checkToken(arg); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *CompiledModule) checkCode(code []Instruction) error {
	for _, ins := range code {
		var err error

		switch ins.Op {
		case OpBrTrue, OpBrFalse, OpBranch:
			err = outOfBounds("branch target", ins.Arg, len(code))
		case OpLdConst:
			err = outOfBounds("constant", ins.Arg, len(m.ConstantPool))
		case OpCall:
			err = outOfBounds("function handle", ins.Arg, len(m.FunctionHandles))
		case OpCallGeneric:
			err = outOfBounds("function instantiation", ins.Arg, len(m.FunctionInsts))
		case OpPack, OpUnpack:
			err = outOfBounds("struct def", ins.Arg, len(m.StructDefs))
		case OpPackGeneric, OpUnpackGeneric:
			err = outOfBounds("struct instantiation", ins.Arg, len(m.StructDefInsts))
		case OpMutBorrowField, OpImmBorrowField:
			err = outOfBounds("field handle", ins.Arg, len(m.FieldHandles))
		case OpMutBorrowFieldGeneric, OpImmBorrowFieldGeneric:
			err = outOfBounds("field instantiation", ins.Arg, len(m.FieldInsts))
		case OpVecPack, OpVecLen, OpVecImmBorrow, OpVecMutBorrow, OpVecPushBack,
			OpVecPopBack, OpVecUnpack, OpVecSwap:
			err = outOfBounds("signature", ins.Arg, len(m.Signatures))
		}

		if err != nil {
			return err
		}
	}

	return nil
}
