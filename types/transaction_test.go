package types

import (
	"encoding/json"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgument(t *testing.T) {
	t.Parallel()

	for _, a := range []Argument{GasCoin(), Input(3), Result(0), NestedResult(2, 1)} {
		parsed, err := ParseArgument(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}

	parsed, err := ParseArgument("NestedResult(1, 4)")
	require.NoError(t, err)
	assert.Equal(t, NestedResult(1, 4), parsed)

	for _, bad := range []string{"Input", "Input(x)", "Result(1,2)", "Other(1)", "Input(70000)"} {
		_, err := ParseArgument(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func samplePTB() *ProgrammableTransaction {
	coinType := MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")

	return &ProgrammableTransaction{
		Inputs: []TransactionInput{
			ObjectInput(ObjectRef{ID: MustParseAddress("0x11"), Version: 10}),
			PureAddress(MustParseAddress("0xabc")),
			PureU64(300),
			SharedInput(ClockObjectID, 1, false),
		},
		Commands: []Command{
			{SplitCoins: &SplitCoins{Coin: Input(0), Amounts: []Argument{Input(2)}}},
			{MoveCall: &MoveCall{
				Package:       MustParseAddress("0xfeed"),
				Module:        "pool",
				Function:      "swap",
				TypeArguments: []TypeTag{coinType},
				Arguments:     []Argument{NestedResult(0, 0), Input(3)},
			}},
			{MakeMoveVec: &MakeMoveVec{Type: &coinType, Elements: []Argument{Result(1)}}},
			{TransferObjects: &TransferObjects{Objects: []Argument{Result(2)}, Recipient: Input(1)}},
		},
	}
}

func TestPTBBCSRoundTrip(t *testing.T) {
	t.Parallel()

	ptb := samplePTB()

	e := bcs.NewEncoder()
	EncodePTB(e, ptb)

	d := bcs.NewDecoder(e.Bytes())
	decoded, err := DecodePTB(d)
	require.NoError(t, err)
	require.NoError(t, d.Finish())

	assert.Equal(t, len(ptb.Commands), len(decoded.Commands))
	assert.Equal(t, CmdMoveCall, decoded.Commands[1].Kind())
	assert.Equal(t, "swap", decoded.Commands[1].MoveCall.Function)
	assert.Equal(t, ptb.Inputs, decoded.Inputs)

	e2 := bcs.NewEncoder()
	EncodePTB(e2, &decoded)
	assert.Equal(t, e.Bytes(), e2.Bytes())
}

func TestPTBJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(samplePTB())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NestedResult(0,0)"`)

	var decoded ProgrammableTransaction

	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, c := range decoded.Commands {
		assert.NoError(t, c.Validate())
	}

	assert.Equal(t, CmdTransferObjects, decoded.Commands[3].Kind())
}

func TestPTBPackages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Address{MustParseAddress("0xfeed"), FrameworkAddress}, samplePTB().Packages())
}

func TestDerivedIdentifiersAreDeterministic(t *testing.T) {
	t.Parallel()

	ptb := samplePTB()
	d1 := ComputeTransactionDigest(MustParseAddress("0x1234"), 5, 0, ptb)
	d2 := ComputeTransactionDigest(MustParseAddress("0x1234"), 5, 0, ptb)
	d3 := ComputeTransactionDigest(MustParseAddress("0x1234"), 5, 1, ptb)

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, d1, d3)
	assert.Equal(t, DeriveObjectID(d1, 0), DeriveObjectID(d2, 0))
	assert.NotEqual(t, DeriveObjectID(d1, 0), DeriveObjectID(d1, 1))
}

func TestCommandValidate(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Command{}.Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, Command{
		MergeCoins: &MergeCoins{}, SplitCoins: &SplitCoins{},
	}.Validate(), ErrInvalidCommand)
}
