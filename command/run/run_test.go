package run

import (
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = types.MustParseAddress("0xa11ce")
	coinType = types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	ownedID  = types.MustParseAddress("0xc0")
	sharedID = types.MustParseAddress("0x5a")
)

func lookup(id types.ObjectID) (*types.VersionedObject, bool) {
	switch id {
	case ownedID:
		return types.NewVersionedObject(ownedID, 4, coinType, []byte{1}, types.AddressOwner(owner)), true
	case sharedID:
		return types.NewVersionedObject(sharedID, 9, coinType, []byte{2}, types.SharedOwner(3)), true
	default:
		return nil, false
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	call, err := parseTarget("0x2::coin::split")
	require.NoError(t, err)
	assert.Equal(t, types.FrameworkAddress, call.Package)
	assert.Equal(t, "coin", call.Module)
	assert.Equal(t, "split", call.Function)

	for _, bad := range []string{"0x2::coin", "coin::split::x", "0x2::::split"} {
		_, err := parseTarget(bad)
		assert.ErrorIs(t, err, errInvalidTarget, bad)
	}
}

func TestParseCallArg(t *testing.T) {
	t.Parallel()

	str := bcs.NewEncoder()
	str.WriteString("hello")

	cases := []struct {
		raw      string
		expected types.TransactionInput
	}{
		{"42", types.PureU64(42)},
		{"7u8", types.PureInput([]byte{7})},
		{"258u16", types.PureInput([]byte{2, 1})},
		{"true", types.PureInput([]byte{1})},
		{"false", types.PureInput([]byte{0})},
		{"hello", types.PureInput(str.Bytes())},
		{"@0xc0", types.PureAddress(ownedID)},
		{"0xbeef", types.PureAddress(types.MustParseAddress("0xbeef"))},
		{"0xc0", types.ObjectInput(types.ObjectRef{
			ID: ownedID, Version: 4, Digest: types.ObjectDigest([]byte{1}),
		})},
		{"0x5a", types.SharedInput(sharedID, 3, true)},
	}

	for _, c := range cases {
		c := c

		t.Run(c.raw, func(t *testing.T) {
			t.Parallel()

			in, err := ParseCallArg(c.raw, lookup)
			require.NoError(t, err)
			assert.Equal(t, c.expected, in)
		})
	}

	_, err := ParseCallArg("@nope", lookup)
	assert.Error(t, err)
}

func TestBuildCall(t *testing.T) {
	t.Parallel()

	call, err := parseTarget("0xfeed::pool::swap")
	require.NoError(t, err)

	tx, err := BuildCall(*call, []types.TypeTag{coinType}, []string{"0x5a", "100"}, lookup)
	require.NoError(t, err)

	require.Len(t, tx.Inputs, 2)
	require.Len(t, tx.Commands, 1)

	mc := tx.Commands[0].MoveCall
	require.NotNil(t, mc)
	assert.Equal(t, []types.Argument{types.Input(0), types.Input(1)}, mc.Arguments)
	assert.Equal(t, []types.TypeTag{coinType}, mc.TypeArguments)
	assert.Equal(t, types.InputShared, tx.Inputs[0].Kind)

	// the parsed target is not modified
	assert.Nil(t, call.Arguments)
}
