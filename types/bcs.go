package types

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
)

// BCS variant indices of TypeTag
var typeTagVariants = []TypeTagKind{
	TypeBool, TypeU8, TypeU64, TypeU128, TypeAddress, TypeSigner,
	TypeVector, TypeStruct, TypeU16, TypeU32, TypeU256,
}

func typeTagVariant(k TypeTagKind) uint64 {
	for i, v := range typeTagVariants {
		if v == k {
			return uint64(i)
		}
	}

	panic(fmt.Sprintf("unknown type tag kind %d", k))
}

func EncodeTypeTag(e *bcs.Encoder, t TypeTag) {
	e.WriteULEB128(typeTagVariant(t.Kind))

	switch t.Kind {
	case TypeVector:
		EncodeTypeTag(e, *t.Elem)
	case TypeStruct:
		EncodeStructTag(e, *t.Struct)
	}
}

func EncodeStructTag(e *bcs.Encoder, st StructTag) {
	e.WriteFixedBytes(st.Address.Bytes())
	e.WriteString(st.Module)
	e.WriteString(st.Name)
	e.WriteULEB128(uint64(len(st.TypeParams)))

	for _, p := range st.TypeParams {
		EncodeTypeTag(e, p)
	}
}

// TypeTagBytes returns the BCS encoding of t
func TypeTagBytes(t TypeTag) []byte {
	e := bcs.NewEncoder()
	EncodeTypeTag(e, t)

	return e.Bytes()
}

func DecodeTypeTag(d *bcs.Decoder) (TypeTag, error) {
	return decodeTypeTag(d, 0)
}

func decodeTypeTag(d *bcs.Decoder, depth int) (TypeTag, error) {
	if depth > MaxTypeTagDepth {
		return TypeTag{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedTypeTag, MaxTypeTagDepth)
	}

	variant, err := d.ReadULEB128()
	if err != nil {
		return TypeTag{}, err
	}

	if variant >= uint64(len(typeTagVariants)) {
		return TypeTag{}, fmt.Errorf("%w: type tag variant %d", ErrMalformedTypeTag, variant)
	}

	switch kind := typeTagVariants[variant]; kind {
	case TypeVector:
		elem, err := decodeTypeTag(d, depth+1)
		if err != nil {
			return TypeTag{}, err
		}

		return VectorTag(elem), nil
	case TypeStruct:
		st, err := decodeStructTag(d, depth)
		if err != nil {
			return TypeTag{}, err
		}

		return StructTypeTag(st), nil
	default:
		return PrimitiveTag(kind), nil
	}
}

func DecodeStructTag(d *bcs.Decoder) (StructTag, error) {
	return decodeStructTag(d, 0)
}

func decodeStructTag(d *bcs.Decoder, depth int) (StructTag, error) {
	var st StructTag

	addr, err := DecodeAddress(d)
	if err != nil {
		return st, err
	}

	st.Address = addr

	if st.Module, err = d.ReadString(); err != nil {
		return st, err
	}

	if st.Name, err = d.ReadString(); err != nil {
		return st, err
	}

	n, err := d.ReadLength()
	if err != nil {
		return st, err
	}

	for i := 0; i < n; i++ {
		p, err := decodeTypeTag(d, depth+1)
		if err != nil {
			return st, err
		}

		st.TypeParams = append(st.TypeParams, p)
	}

	return st, nil
}

func DecodeAddress(d *bcs.Decoder) (Address, error) {
	b, err := d.ReadFixedBytes(AddressLength)
	if err != nil {
		return ZeroAddress, err
	}

	return BytesToAddress(b), nil
}

func decodeDigest(d *bcs.Decoder) (Digest, error) {
	b, err := d.ReadFixedBytes(DigestLength)
	if err != nil {
		return ZeroDigest, err
	}

	var out Digest

	copy(out[:], b)

	return out, nil
}

func encodeAddresses(e *bcs.Encoder, addrs []Address) {
	e.WriteULEB128(uint64(len(addrs)))

	for _, a := range addrs {
		e.WriteFixedBytes(a.Bytes())
	}
}

func decodeAddresses(d *bcs.Decoder) ([]Address, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	var out []Address

	for i := 0; i < n; i++ {
		a, err := DecodeAddress(d)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, nil
}

func EncodeObjectRef(e *bcs.Encoder, r ObjectRef) {
	e.WriteFixedBytes(r.ID.Bytes())
	e.WriteU64(r.Version)
	e.WriteFixedBytes(r.Digest[:])
}

func DecodeObjectRef(d *bcs.Decoder) (ObjectRef, error) {
	var (
		r   ObjectRef
		err error
	)

	if r.ID, err = DecodeAddress(d); err != nil {
		return r, err
	}

	if r.Version, err = d.ReadU64(); err != nil {
		return r, err
	}

	r.Digest, err = decodeDigest(d)

	return r, err
}

func EncodeInput(e *bcs.Encoder, in TransactionInput) {
	switch in.Kind {
	case InputPure:
		e.WriteULEB128(0)
		e.WriteBytes(in.Bytes)
	case InputObject:
		e.WriteULEB128(1)
		EncodeObjectRef(e, ObjectRef{ID: in.ID, Version: in.Version, Digest: in.Digest})
	case InputShared:
		e.WriteULEB128(2)
		e.WriteFixedBytes(in.ID.Bytes())
		e.WriteU64(in.InitialSharedVersion)
		e.WriteBool(in.Mutable)
	case InputReceiving:
		e.WriteULEB128(3)
		EncodeObjectRef(e, ObjectRef{ID: in.ID, Version: in.Version, Digest: in.Digest})
	}
}

func DecodeInput(d *bcs.Decoder) (TransactionInput, error) {
	variant, err := d.ReadULEB128()
	if err != nil {
		return TransactionInput{}, err
	}

	switch variant {
	case 0:
		b, err := d.ReadBytes()

		return TransactionInput{Kind: InputPure, Bytes: b}, err
	case 1, 3:
		ref, err := DecodeObjectRef(d)
		if err != nil {
			return TransactionInput{}, err
		}

		if variant == 1 {
			return ObjectInput(ref), nil
		}

		return ReceivingInput(ref), nil
	case 2:
		id, err := DecodeAddress(d)
		if err != nil {
			return TransactionInput{}, err
		}

		initial, err := d.ReadU64()
		if err != nil {
			return TransactionInput{}, err
		}

		mutable, err := d.ReadBool()
		if err != nil {
			return TransactionInput{}, err
		}

		return SharedInput(id, initial, mutable), nil
	default:
		return TransactionInput{}, fmt.Errorf("%w: variant %d", ErrInvalidInput, variant)
	}
}

func EncodeArgument(e *bcs.Encoder, a Argument) {
	e.WriteULEB128(uint64(a.Kind))

	switch a.Kind {
	case ArgInput, ArgResult:
		e.WriteU16(a.Index)
	case ArgNestedResult:
		e.WriteU16(a.Index)
		e.WriteU16(a.SubIndex)
	}
}

func DecodeArgument(d *bcs.Decoder) (Argument, error) {
	variant, err := d.ReadULEB128()
	if err != nil {
		return Argument{}, err
	}

	a := Argument{Kind: ArgumentKind(variant)}

	switch a.Kind {
	case ArgGasCoin:
	case ArgInput, ArgResult:
		a.Index, err = d.ReadU16()
	case ArgNestedResult:
		if a.Index, err = d.ReadU16(); err == nil {
			a.SubIndex, err = d.ReadU16()
		}
	default:
		return a, fmt.Errorf("%w: variant %d", ErrInvalidArgument, variant)
	}

	return a, err
}

func encodeArguments(e *bcs.Encoder, args []Argument) {
	e.WriteULEB128(uint64(len(args)))

	for _, a := range args {
		EncodeArgument(e, a)
	}
}

func decodeArguments(d *bcs.Decoder) ([]Argument, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	var out []Argument

	for i := 0; i < n; i++ {
		a, err := DecodeArgument(d)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, nil
}

func encodeModules(e *bcs.Encoder, mods [][]byte) {
	e.WriteULEB128(uint64(len(mods)))

	for _, m := range mods {
		e.WriteBytes(m)
	}
}

func decodeModules(d *bcs.Decoder) ([][]byte, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	var out [][]byte

	for i := 0; i < n; i++ {
		m, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}

		out = append(out, m)
	}

	return out, nil
}

func EncodeCommand(e *bcs.Encoder, c Command) {
	switch {
	case c.MoveCall != nil:
		e.WriteULEB128(0)
		e.WriteFixedBytes(c.MoveCall.Package.Bytes())
		e.WriteString(c.MoveCall.Module)
		e.WriteString(c.MoveCall.Function)
		e.WriteULEB128(uint64(len(c.MoveCall.TypeArguments)))

		for _, t := range c.MoveCall.TypeArguments {
			EncodeTypeTag(e, t)
		}

		encodeArguments(e, c.MoveCall.Arguments)
	case c.SplitCoins != nil:
		e.WriteULEB128(1)
		EncodeArgument(e, c.SplitCoins.Coin)
		encodeArguments(e, c.SplitCoins.Amounts)
	case c.MergeCoins != nil:
		e.WriteULEB128(2)
		EncodeArgument(e, c.MergeCoins.Target)
		encodeArguments(e, c.MergeCoins.Sources)
	case c.TransferObjects != nil:
		e.WriteULEB128(3)
		encodeArguments(e, c.TransferObjects.Objects)
		EncodeArgument(e, c.TransferObjects.Recipient)
	case c.Publish != nil:
		e.WriteULEB128(4)
		encodeModules(e, c.Publish.Modules)
		encodeAddresses(e, c.Publish.Dependencies)
	case c.Upgrade != nil:
		e.WriteULEB128(5)
		encodeModules(e, c.Upgrade.Modules)
		encodeAddresses(e, c.Upgrade.Dependencies)
		e.WriteFixedBytes(c.Upgrade.Package.Bytes())
		EncodeArgument(e, c.Upgrade.Ticket)
	case c.MakeMoveVec != nil:
		e.WriteULEB128(6)
		e.WriteOption(c.MakeMoveVec.Type != nil, func(e *bcs.Encoder) {
			EncodeTypeTag(e, *c.MakeMoveVec.Type)
		})
		encodeArguments(e, c.MakeMoveVec.Elements)
	}
}

//nolint:gocognit
func DecodeCommand(d *bcs.Decoder) (Command, error) {
	variant, err := d.ReadULEB128()
	if err != nil {
		return Command{}, err
	}

	switch variant {
	case 0:
		mc := &MoveCall{}

		if mc.Package, err = DecodeAddress(d); err != nil {
			return Command{}, err
		}

		if mc.Module, err = d.ReadString(); err != nil {
			return Command{}, err
		}

		if mc.Function, err = d.ReadString(); err != nil {
			return Command{}, err
		}

		n, err := d.ReadLength()
		if err != nil {
			return Command{}, err
		}

		for i := 0; i < n; i++ {
			t, err := DecodeTypeTag(d)
			if err != nil {
				return Command{}, err
			}

			mc.TypeArguments = append(mc.TypeArguments, t)
		}

		if mc.Arguments, err = decodeArguments(d); err != nil {
			return Command{}, err
		}

		return Command{MoveCall: mc}, nil
	case 1, 2:
		first, err := DecodeArgument(d)
		if err != nil {
			return Command{}, err
		}

		rest, err := decodeArguments(d)
		if err != nil {
			return Command{}, err
		}

		if variant == 1 {
			return Command{SplitCoins: &SplitCoins{Coin: first, Amounts: rest}}, nil
		}

		return Command{MergeCoins: &MergeCoins{Target: first, Sources: rest}}, nil
	case 3:
		objs, err := decodeArguments(d)
		if err != nil {
			return Command{}, err
		}

		recipient, err := DecodeArgument(d)
		if err != nil {
			return Command{}, err
		}

		return Command{TransferObjects: &TransferObjects{Objects: objs, Recipient: recipient}}, nil
	case 4, 5:
		mods, err := decodeModules(d)
		if err != nil {
			return Command{}, err
		}

		deps, err := decodeAddresses(d)
		if err != nil {
			return Command{}, err
		}

		if variant == 4 {
			return Command{Publish: &Publish{Modules: mods, Dependencies: deps}}, nil
		}

		pkg, err := DecodeAddress(d)
		if err != nil {
			return Command{}, err
		}

		ticket, err := DecodeArgument(d)
		if err != nil {
			return Command{}, err
		}

		return Command{Upgrade: &Upgrade{Modules: mods, Dependencies: deps, Package: pkg, Ticket: ticket}}, nil
	case 6:
		mv := &MakeMoveVec{}

		if _, err := d.ReadOption(func(d *bcs.Decoder) error {
			t, err := DecodeTypeTag(d)
			mv.Type = &t

			return err
		}); err != nil {
			return Command{}, err
		}

		if mv.Elements, err = decodeArguments(d); err != nil {
			return Command{}, err
		}

		return Command{MakeMoveVec: mv}, nil
	default:
		return Command{}, fmt.Errorf("%w: variant %d", ErrInvalidCommand, variant)
	}
}

func EncodePTB(e *bcs.Encoder, p *ProgrammableTransaction) {
	e.WriteULEB128(uint64(len(p.Inputs)))

	for _, in := range p.Inputs {
		EncodeInput(e, in)
	}

	e.WriteULEB128(uint64(len(p.Commands)))

	for _, c := range p.Commands {
		EncodeCommand(e, c)
	}
}

func DecodePTB(d *bcs.Decoder) (ProgrammableTransaction, error) {
	var p ProgrammableTransaction

	n, err := d.ReadLength()
	if err != nil {
		return p, err
	}

	for i := 0; i < n; i++ {
		in, err := DecodeInput(d)
		if err != nil {
			return p, err
		}

		p.Inputs = append(p.Inputs, in)
	}

	if n, err = d.ReadLength(); err != nil {
		return p, err
	}

	for i := 0; i < n; i++ {
		c, err := DecodeCommand(d)
		if err != nil {
			return p, err
		}

		p.Commands = append(p.Commands, c)
	}

	return p, nil
}

var ownerVariants = []OwnerKind{OwnerAddress, OwnerObject, OwnerShared, OwnerImmutable}

func EncodeOwner(e *bcs.Encoder, o Owner) {
	for i, k := range ownerVariants {
		if k == o.Kind {
			e.WriteULEB128(uint64(i))
		}
	}

	switch o.Kind {
	case OwnerAddress, OwnerObject:
		e.WriteFixedBytes(o.Address.Bytes())
	case OwnerShared:
		e.WriteU64(o.InitialSharedVersion)
	}
}

func DecodeOwner(d *bcs.Decoder) (Owner, error) {
	variant, err := d.ReadULEB128()
	if err != nil {
		return Owner{}, err
	}

	if variant >= uint64(len(ownerVariants)) {
		return Owner{}, fmt.Errorf("%w: variant %d", ErrUnknownOwner, variant)
	}

	o := Owner{Kind: ownerVariants[variant]}

	switch o.Kind {
	case OwnerAddress, OwnerObject:
		o.Address, err = DecodeAddress(d)
	case OwnerShared:
		o.InitialSharedVersion, err = d.ReadU64()
	}

	return o, err
}

func EncodeObject(e *bcs.Encoder, o *VersionedObject) {
	e.WriteFixedBytes(o.ID.Bytes())
	e.WriteU64(o.Version)
	e.WriteFixedBytes(o.Digest[:])
	EncodeTypeTag(e, o.Type)
	e.WriteBytes(o.BCS)
	EncodeOwner(e, o.EffectiveOwner())
}

func DecodeObject(d *bcs.Decoder) (*VersionedObject, error) {
	o := &VersionedObject{}

	var err error

	if o.ID, err = DecodeAddress(d); err != nil {
		return nil, err
	}

	if o.Version, err = d.ReadU64(); err != nil {
		return nil, err
	}

	if o.Digest, err = decodeDigest(d); err != nil {
		return nil, err
	}

	if o.Type, err = DecodeTypeTag(d); err != nil {
		return nil, err
	}

	if o.BCS, err = d.ReadBytes(); err != nil {
		return nil, err
	}

	owner, err := DecodeOwner(d)
	if err != nil {
		return nil, err
	}

	o.Owner = &owner
	o.IsShared = owner.Kind == OwnerShared
	o.IsImmutable = owner.Kind == OwnerImmutable

	return o, nil
}

func EncodePackage(e *bcs.Encoder, p *PackageData) {
	e.WriteFixedBytes(p.Address.Bytes())
	e.WriteU64(p.Version)
	e.WriteULEB128(uint64(len(p.Modules)))

	for _, m := range p.Modules {
		e.WriteString(m.Name)
		e.WriteBytes(m.Bytecode)
	}

	e.WriteULEB128(uint64(len(p.Linkage)))

	for _, l := range p.Linkage {
		e.WriteFixedBytes(l.OriginalID.Bytes())
		e.WriteFixedBytes(l.UpgradedID.Bytes())
		e.WriteU64(l.UpgradedVersion)
	}

	e.WriteOption(p.OriginalID != nil, func(e *bcs.Encoder) {
		e.WriteFixedBytes(p.OriginalID.Bytes())
	})
}

func DecodePackage(d *bcs.Decoder) (*PackageData, error) {
	p := &PackageData{}

	var err error

	if p.Address, err = DecodeAddress(d); err != nil {
		return nil, err
	}

	if p.Version, err = d.ReadU64(); err != nil {
		return nil, err
	}

	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		var m ModuleBytes

		if m.Name, err = d.ReadString(); err != nil {
			return nil, err
		}

		if m.Bytecode, err = d.ReadBytes(); err != nil {
			return nil, err
		}

		p.Modules = append(p.Modules, m)
	}

	if n, err = d.ReadLength(); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		var l LinkageEntry

		if l.OriginalID, err = DecodeAddress(d); err != nil {
			return nil, err
		}

		if l.UpgradedID, err = DecodeAddress(d); err != nil {
			return nil, err
		}

		if l.UpgradedVersion, err = d.ReadU64(); err != nil {
			return nil, err
		}

		p.Linkage = append(p.Linkage, l)
	}

	if _, err := d.ReadOption(func(d *bcs.Decoder) error {
		orig, err := DecodeAddress(d)
		p.OriginalID = &orig

		return err
	}); err != nil {
		return nil, err
	}

	return p, nil
}

var changeOperations = []ChangeOperation{OpCreated, OpMutated, OpDeleted, OpWrapped, OpUnwrapped}

func encodeObjectVersions(e *bcs.Encoder, list []ObjectVersion) {
	e.WriteULEB128(uint64(len(list)))

	for _, ov := range list {
		e.WriteFixedBytes(ov.ID.Bytes())
		e.WriteU64(ov.Version)
	}
}

func decodeObjectVersions(d *bcs.Decoder) ([]ObjectVersion, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	var out []ObjectVersion

	for i := 0; i < n; i++ {
		var ov ObjectVersion

		if ov.ID, err = DecodeAddress(d); err != nil {
			return nil, err
		}

		if ov.Version, err = d.ReadU64(); err != nil {
			return nil, err
		}

		out = append(out, ov)
	}

	return out, nil
}

func EncodeEffectsSummary(e *bcs.Encoder, s *EffectsSummary) {
	e.WriteBool(s.Success)
	e.WriteString(s.Error)
	e.WriteU64(s.Gas.ComputationCost)
	e.WriteU64(s.Gas.StorageCost)
	e.WriteU64(s.Gas.StorageRebate)
	e.WriteU64(s.Gas.Total)
	e.WriteULEB128(uint64(len(s.ChangedObjects)))

	for _, c := range s.ChangedObjects {
		e.WriteFixedBytes(c.ID.Bytes())
		e.WriteU64(c.InputVersion)
		e.WriteU64(c.OutputVersion)

		for i, op := range changeOperations {
			if op == c.Operation {
				e.WriteU8(uint8(i))
			}
		}

		e.WriteBool(c.Transferred)
		e.WriteOption(c.Type != nil, func(e *bcs.Encoder) {
			EncodeTypeTag(e, *c.Type)
		})
	}

	encodeObjectVersions(e, s.UnchangedConsensusObjects)
	encodeObjectVersions(e, s.UnchangedLoadedRuntimeObjects)
	e.WriteU64(s.LamportVersion)
	e.WriteU64(s.Epoch)
	e.WriteU64(s.ProtocolVersion)
}

//nolint:gocognit
func DecodeEffectsSummary(d *bcs.Decoder) (*EffectsSummary, error) {
	s := &EffectsSummary{}

	var err error

	if s.Success, err = d.ReadBool(); err != nil {
		return nil, err
	}

	if s.Error, err = d.ReadString(); err != nil {
		return nil, err
	}

	for _, field := range []*uint64{
		&s.Gas.ComputationCost, &s.Gas.StorageCost, &s.Gas.StorageRebate, &s.Gas.Total,
	} {
		if *field, err = d.ReadU64(); err != nil {
			return nil, err
		}
	}

	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		var c ChangedObject

		if c.ID, err = DecodeAddress(d); err != nil {
			return nil, err
		}

		if c.InputVersion, err = d.ReadU64(); err != nil {
			return nil, err
		}

		if c.OutputVersion, err = d.ReadU64(); err != nil {
			return nil, err
		}

		op, err := d.ReadU8()
		if err != nil {
			return nil, err
		}

		if int(op) >= len(changeOperations) {
			return nil, fmt.Errorf("%w: change operation %d", ErrInvalidInput, op)
		}

		c.Operation = changeOperations[op]

		if c.Transferred, err = d.ReadBool(); err != nil {
			return nil, err
		}

		if _, err := d.ReadOption(func(d *bcs.Decoder) error {
			t, err := DecodeTypeTag(d)
			c.Type = &t

			return err
		}); err != nil {
			return nil, err
		}

		s.ChangedObjects = append(s.ChangedObjects, c)
	}

	if s.UnchangedConsensusObjects, err = decodeObjectVersions(d); err != nil {
		return nil, err
	}

	if s.UnchangedLoadedRuntimeObjects, err = decodeObjectVersions(d); err != nil {
		return nil, err
	}

	for _, field := range []*uint64{&s.LamportVersion, &s.Epoch, &s.ProtocolVersion} {
		if *field, err = d.ReadU64(); err != nil {
			return nil, err
		}
	}

	return s, nil
}
