package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
)

const (
	blobExt           = ".chk"
	compressedBlobExt = ".chk.zst"
)

// Dir serves checkpoint blobs stored as <seq>.chk or <seq>.chk.zst
// in one directory
type Dir struct {
	path string
}

var _ source.CheckpointSource = (*Dir)(nil)

func NewDir(path string) (*Dir, error) {
	path = common.ExpandHome(path)

	if !common.DirectoryExists(path) {
		return nil, fmt.Errorf("%w: checkpoint directory %q not found", source.ErrAdapterUnavailable, path)
	}

	return &Dir{path: path}, nil
}

func (d *Dir) Path() string {
	return d.path
}

// BlobName is the file name of checkpoint seq
func BlobName(seq uint64) string {
	return strconv.FormatUint(seq, 10) + blobExt
}

func (d *Dir) FetchCheckpoint(ctx context.Context, seq uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, name := range []string{BlobName(seq), strconv.FormatUint(seq, 10) + compressedBlobExt} {
		blob, err := os.ReadFile(filepath.Join(d.path, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}

		return blob, nil
	}

	return nil, fmt.Errorf("%w: %d", source.ErrCheckpointMissing, seq)
}

// Write stores the blob of checkpoint seq
func (d *Dir) Write(seq uint64, blob []byte) error {
	return common.SaveFileAtomic(filepath.Join(d.path, BlobName(seq)), blob, 0o644)
}

// Sequences lists the checkpoints present, ascending
func (d *Dir) Sequences() ([]uint64, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}

	seen := map[uint64]struct{}{}

	var out []uint64

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := e.Name()

		var base string

		switch {
		case strings.HasSuffix(name, compressedBlobExt):
			base = strings.TrimSuffix(name, compressedBlobExt)
		case strings.HasSuffix(name, blobExt):
			base = strings.TrimSuffix(name, blobExt)
		default:
			continue
		}

		seq, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}

		if _, ok := seen[seq]; !ok {
			seen[seq] = struct{}{}
			out = append(out, seq)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}
