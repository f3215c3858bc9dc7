package replay

import (
	"context"
	"strings"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVaultAnalyzer(t *testing.T) *Analyzer {
	t.Helper()

	res, err := resolver.New(nil).WithFramework()
	require.NoError(t, err)
	require.NoError(t, res.AddPackage(vaultPackage(t)))

	return NewAnalyzer(nil, res, 0)
}

func TestAnalyzeConstantKey(t *testing.T) {
	t.Parallel()

	a := newVaultAnalyzer(t)

	analysis, err := a.Analyze(vaultID, "vault", "field_value", nil)
	require.NoError(t, err)

	require.True(t, analysis.Touches())
	require.Len(t, analysis.Sites, 1)

	site := analysis.Sites[0]
	assert.Equal(t, "borrow", site.Accessor)
	assert.Equal(t, 3, site.Offset)
	require.True(t, site.Deducible())
	assert.Equal(t, u64Tag, *site.KeyType)
	assert.Equal(t, childKey(), site.Key)
}

func TestAnalyzePropagatesSinks(t *testing.T) {
	t.Parallel()

	a := newVaultAnalyzer(t)

	analysis, err := a.Analyze(vaultID, "vault", "outer", nil)
	require.NoError(t, err)

	require.Len(t, analysis.Sinks, 2)
	assert.True(t, strings.HasSuffix(analysis.Sinks[0], "::field_value"))
	assert.True(t, strings.HasSuffix(analysis.Sinks[1], "::outer"))

	require.Len(t, analysis.Sites, 1)
	assert.True(t, strings.HasSuffix(analysis.Sites[0].Function, "::field_value"))
}

func TestAnalyzeNoAccess(t *testing.T) {
	t.Parallel()

	analysis, err := newVaultAnalyzer(t).Analyze(vaultID, "vault", "noop", nil)
	require.NoError(t, err)

	assert.False(t, analysis.Touches())
	assert.Empty(t, analysis.Sinks)
}

func TestAnalyzeUnknownFunction(t *testing.T) {
	t.Parallel()

	_, err := newVaultAnalyzer(t).Analyze(vaultID, "vault", "missing", nil)

	var re *resolver.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, resolver.FunctionNotFound, re.Kind)
}

func TestPredictDerivesChild(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("outer")
	objects := map[types.ObjectID]*types.VersionedObject{itemID: itemObject(t)}

	pred := newVaultAnalyzer(t).Predict(&tx.PTB, objects)

	require.Len(t, pred.Children, 1)
	assert.Equal(t, itemID, pred.Children[0].Parent)
	assert.Equal(t, childID(), pred.Children[0].Child)
	assert.Empty(t, pred.Parents)
	assert.Len(t, pred.Sinks, 2)
}

func TestPredictDynamicKeyEnumerates(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_at")
	tx.PTB.Inputs = append(tx.PTB.Inputs, types.PureInput(childKey()))
	tx.PTB.Commands[0].MoveCall.Arguments = []types.Argument{types.Input(0), types.Input(1)}

	objects := map[types.ObjectID]*types.VersionedObject{itemID: itemObject(t)}

	pred := newVaultAnalyzer(t).Predict(&tx.PTB, objects)

	assert.Empty(t, pred.Children)
	assert.Equal(t, []types.ObjectID{itemID}, pred.Parents)
}

func TestPredictedPrefetch(t *testing.T) {
	t.Parallel()

	src := newVaultSource(t, true)
	pf := newPrefetcher(nil, src, src, nil, nil, 0)

	tx := vaultTransaction("outer")
	st := types.NewReplayState(*tx)
	st.Objects[itemID] = itemObject(t)

	pred := newVaultAnalyzer(t).Predict(&tx.PTB, st.Objects)

	added, err := pf.predicted(context.Background(), st, pred)
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Contains(t, st.Objects, childID())
}
