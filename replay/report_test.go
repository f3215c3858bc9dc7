package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	engine := NewEngine(nil, source.BundleOf(newVaultSource(t, true)), DefaultConfig())

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	report := NewReport(out)
	assert.True(t, report.Success)
	assert.True(t, report.LocalSuccess)
	assert.Equal(t, "Success", report.Outcome)
	assert.Len(t, report.Attempts, 2)

	// the failed first attempt explains itself
	require.NotEmpty(t, report.Diagnostics.Hints)
	assert.True(t, strings.HasPrefix(report.Diagnostics.Hints[0], "attempt 1: "))

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, true, decoded["local_success"])
	assert.Equal(t, out.RunID, decoded["run_id"])

	diagnostics, ok := decoded["diagnostics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{}, diagnostics["missing_input_objects"])
	assert.Equal(t, []interface{}{}, diagnostics["missing_packages"])

	attempts, ok := decoded["attempts"].([]interface{})
	require.True(t, ok)

	first, ok := attempts[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "inputs", first["level"])
	assert.Equal(t, string(ClassMissingChildObject), first["class"])

	summary := report.Summary()
	assert.Contains(t, summary, "attempt 1 [inputs]")
	assert.Contains(t, summary, "attempt 2 [child-fetcher]")
	assert.Contains(t, summary, "parity: ok")
	assert.True(t, strings.HasSuffix(summary, "result: OK (Success)\n"))
}

func TestReportFailure(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	src := newVaultSource(t, false)
	delete(src.objects, types.ObjectVersion{ID: itemID, Version: 8})

	cfg := DefaultConfig()
	cfg.MaxAttempts = 1

	out, err := NewEngine(nil, source.BundleOf(src), cfg).ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	report := NewReport(out)
	assert.False(t, report.Success)
	assert.Equal(t, []types.ObjectVersion{{ID: itemID, Version: 8}}, report.Diagnostics.MissingInputObjects)
	assert.NotEmpty(t, report.Error)
	assert.Contains(t, report.Summary(), "missing input objects: 1")
	assert.Contains(t, report.Summary(), "result: FAILED")
}

func TestReadSeries(t *testing.T) {
	t.Parallel()

	a := types.Digest(types.Blake2b256([]byte("a")))
	b := types.Digest(types.Blake2b256([]byte("b")))

	path := filepath.Join(t.TempDir(), "series.txt")
	content := "# nightly\n" + a.String() + "\n\n  " + b.String() + "  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	digests, err := ReadSeries(path)
	require.NoError(t, err)
	assert.Equal(t, []types.Digest{a, b}, digests)

	require.NoError(t, os.WriteFile(path, []byte("not-a-digest\n"), 0o600))

	_, err = ReadSeries(path)
	assert.Error(t, err)
}

func TestRunSeries(t *testing.T) {
	t.Parallel()

	ok := vaultTransaction("field_value")
	ok.Effects = onChainEffects(t, ok)

	bad := vaultTransaction("noop")
	bad.PTB.Commands[0].MoveCall.Arguments = nil
	bad.Effects = onChainEffects(t, bad)
	bad.Effects.Success = false

	src := newVaultSource(t, true)
	src.txs[ok.Digest] = ok
	src.txs[bad.Digest] = bad

	unknown := types.Digest(types.Blake2b256([]byte("unknown")))

	engine := NewEngine(nil, source.BundleOf(src), DefaultConfig())
	res := engine.RunSeries(context.Background(), []types.Digest{ok.Digest, bad.Digest, unknown}, 2)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, ok.Digest, res.Entries[0].Digest)
	assert.True(t, res.Entries[0].Report.Success)
	assert.Equal(t, bad.Digest, res.Entries[1].Digest)
	assert.False(t, res.Entries[1].Report.Success)
	assert.Equal(t, unknown, res.Entries[2].Digest)
	assert.Nil(t, res.Entries[2].Report)
	assert.NotEmpty(t, res.Entries[2].Error)

	// tracking ends with the series
	assert.Nil(t, engine.SeriesProgression())
}
