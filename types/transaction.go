package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
)

var (
	ErrInvalidArgument = errors.New("invalid ptb argument")
	ErrInvalidCommand  = errors.New("invalid ptb command")
	ErrInvalidInput    = errors.New("invalid transaction input")
)

type InputKind string

const (
	InputPure      InputKind = "Pure"
	InputObject    InputKind = "Object"
	InputShared    InputKind = "SharedObject"
	InputReceiving InputKind = "Receiving"
)

// TransactionInput is one input slot of a programmable transaction
type TransactionInput struct {
	Kind                 InputKind `json:"kind"`
	Bytes                []byte    `json:"bytes,omitempty"`
	ID                   ObjectID  `json:"id"`
	Version              uint64    `json:"version,omitempty"`
	Digest               Digest    `json:"digest"`
	InitialSharedVersion uint64    `json:"initial_shared_version,omitempty"`
	Mutable              bool      `json:"mutable,omitempty"`
}

func PureInput(b []byte) TransactionInput {
	return TransactionInput{Kind: InputPure, Bytes: CopyBytes(b)}
}

func PureU64(v uint64) TransactionInput {
	return PureInput(bcs.EncodeU64(v))
}

func PureAddress(a Address) TransactionInput {
	return PureInput(a.Bytes())
}

func ObjectInput(ref ObjectRef) TransactionInput {
	return TransactionInput{Kind: InputObject, ID: ref.ID, Version: ref.Version, Digest: ref.Digest}
}

func SharedInput(id ObjectID, initialVersion uint64, mutable bool) TransactionInput {
	return TransactionInput{Kind: InputShared, ID: id, InitialSharedVersion: initialVersion, Mutable: mutable}
}

func ReceivingInput(ref ObjectRef) TransactionInput {
	return TransactionInput{Kind: InputReceiving, ID: ref.ID, Version: ref.Version, Digest: ref.Digest}
}

// IsObject reports whether the input refers to an object
func (in TransactionInput) IsObject() bool {
	return in.Kind != InputPure
}

type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument references a value available to a command
type Argument struct {
	Kind     ArgumentKind
	Index    uint16
	SubIndex uint16
}

func GasCoin() Argument {
	return Argument{Kind: ArgGasCoin}
}

func Input(i uint16) Argument {
	return Argument{Kind: ArgInput, Index: i}
}

func Result(i uint16) Argument {
	return Argument{Kind: ArgResult, Index: i}
}

func NestedResult(i, j uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: i, SubIndex: j}
}

func (a Argument) String() string {
	switch a.Kind {
	case ArgGasCoin:
		return "GasCoin"
	case ArgInput:
		return fmt.Sprintf("Input(%d)", a.Index)
	case ArgResult:
		return fmt.Sprintf("Result(%d)", a.Index)
	default:
		return fmt.Sprintf("NestedResult(%d,%d)", a.Index, a.SubIndex)
	}
}

// ParseArgument accepts the String form
func ParseArgument(s string) (Argument, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "GasCoin" {
		return GasCoin(), nil
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Argument{}, fmt.Errorf("%w: %q", ErrInvalidArgument, s)
	}

	var nums []uint16

	for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return Argument{}, fmt.Errorf("%w: %q", ErrInvalidArgument, s)
		}

		nums = append(nums, uint16(n))
	}

	switch {
	case s[:open] == "Input" && len(nums) == 1:
		return Input(nums[0]), nil
	case s[:open] == "Result" && len(nums) == 1:
		return Result(nums[0]), nil
	case s[:open] == "NestedResult" && len(nums) == 2:
		return NestedResult(nums[0], nums[1]), nil
	default:
		return Argument{}, fmt.Errorf("%w: %q", ErrInvalidArgument, s)
	}
}

func (a Argument) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Argument) UnmarshalText(text []byte) error {
	parsed, err := ParseArgument(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

type CommandKind string

const (
	CmdMoveCall        CommandKind = "MoveCall"
	CmdSplitCoins      CommandKind = "SplitCoins"
	CmdMergeCoins      CommandKind = "MergeCoins"
	CmdTransferObjects CommandKind = "TransferObjects"
	CmdPublish         CommandKind = "Publish"
	CmdUpgrade         CommandKind = "Upgrade"
	CmdMakeMoveVec     CommandKind = "MakeMoveVec"
)

type MoveCall struct {
	Package       Address    `json:"package"`
	Module        string     `json:"module"`
	Function      string     `json:"function"`
	TypeArguments []TypeTag  `json:"type_arguments,omitempty"`
	Arguments     []Argument `json:"arguments"`
}

type SplitCoins struct {
	Coin    Argument   `json:"coin"`
	Amounts []Argument `json:"amounts"`
}

type MergeCoins struct {
	Target  Argument   `json:"target"`
	Sources []Argument `json:"sources"`
}

type TransferObjects struct {
	Objects   []Argument `json:"objects"`
	Recipient Argument   `json:"recipient"`
}

type Publish struct {
	Modules      [][]byte  `json:"modules"`
	Dependencies []Address `json:"dependencies"`
}

type Upgrade struct {
	Modules      [][]byte  `json:"modules"`
	Dependencies []Address `json:"dependencies"`
	Package      Address   `json:"package"`
	Ticket       Argument  `json:"ticket"`
}

type MakeMoveVec struct {
	Type     *TypeTag   `json:"type,omitempty"`
	Elements []Argument `json:"elements"`
}

// Command is a tagged union; exactly one field is set
type Command struct {
	MoveCall        *MoveCall        `json:"MoveCall,omitempty"`
	SplitCoins      *SplitCoins      `json:"SplitCoins,omitempty"`
	MergeCoins      *MergeCoins      `json:"MergeCoins,omitempty"`
	TransferObjects *TransferObjects `json:"TransferObjects,omitempty"`
	Publish         *Publish         `json:"Publish,omitempty"`
	Upgrade         *Upgrade         `json:"Upgrade,omitempty"`
	MakeMoveVec     *MakeMoveVec     `json:"MakeMoveVec,omitempty"`
}

func (c Command) Kind() CommandKind {
	switch {
	case c.MoveCall != nil:
		return CmdMoveCall
	case c.SplitCoins != nil:
		return CmdSplitCoins
	case c.MergeCoins != nil:
		return CmdMergeCoins
	case c.TransferObjects != nil:
		return CmdTransferObjects
	case c.Publish != nil:
		return CmdPublish
	case c.Upgrade != nil:
		return CmdUpgrade
	case c.MakeMoveVec != nil:
		return CmdMakeMoveVec
	default:
		return ""
	}
}

// Validate checks that exactly one variant is set
func (c Command) Validate() error {
	set := 0

	for _, present := range []bool{
		c.MoveCall != nil, c.SplitCoins != nil, c.MergeCoins != nil, c.TransferObjects != nil,
		c.Publish != nil, c.Upgrade != nil, c.MakeMoveVec != nil,
	} {
		if present {
			set++
		}
	}

	if set != 1 {
		return fmt.Errorf("%w: %d variants set", ErrInvalidCommand, set)
	}

	return nil
}

// ProgrammableTransaction is an ordered command sequence over shared inputs
type ProgrammableTransaction struct {
	Inputs   []TransactionInput `json:"inputs"`
	Commands []Command          `json:"commands"`
}

// Packages lists every package referenced by move calls and their type arguments
func (p *ProgrammableTransaction) Packages() []Address {
	seen := map[Address]struct{}{}

	var out []Address

	add := func(a Address) {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}

	for _, cmd := range p.Commands {
		switch {
		case cmd.MoveCall != nil:
			add(cmd.MoveCall.Package)

			for _, ta := range cmd.MoveCall.TypeArguments {
				for _, a := range ta.Addresses() {
					add(a)
				}
			}
		case cmd.MakeMoveVec != nil && cmd.MakeMoveVec.Type != nil:
			for _, a := range cmd.MakeMoveVec.Type.Addresses() {
				add(a)
			}
		case cmd.Upgrade != nil:
			add(cmd.Upgrade.Package)
		}
	}

	return out
}

// GasData describes how the transaction pays for itself
type GasData struct {
	Payment []ObjectRef `json:"payment"`
	Owner   Address     `json:"owner"`
	Price   uint64      `json:"price"`
	Budget  uint64      `json:"budget"`
}

// FetchedTransaction is a historical transaction together with its
// recorded effects
type FetchedTransaction struct {
	Digest      Digest                  `json:"digest"`
	Sender      Address                 `json:"sender"`
	Gas         GasData                 `json:"gas_data"`
	PTB         ProgrammableTransaction `json:"ptb"`
	Effects     *EffectsSummary         `json:"effects,omitempty"`
	TimestampMs uint64                  `json:"timestamp_ms"`
	Checkpoint  *uint64                 `json:"checkpoint,omitempty"`
}

// ComputeTransactionDigest derives a digest from the transaction contents
// and a caller supplied nonce
func ComputeTransactionDigest(sender Address, epoch, nonce uint64, ptb *ProgrammableTransaction) Digest {
	e := bcs.NewEncoder()
	e.WriteFixedBytes(sender.Bytes())
	e.WriteU64(epoch)
	e.WriteU64(nonce)
	EncodePTB(e, ptb)

	return Digest(Blake2b256([]byte("TransactionData::"), e.Bytes()))
}

// DeriveObjectID returns the id of the count-th object created by a transaction
func DeriveObjectID(txDigest Digest, count uint64) ObjectID {
	return Blake2b256(txDigest[:], bcs.EncodeU64(count))
}
