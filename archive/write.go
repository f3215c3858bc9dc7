// Package archive reads and writes the portable files of the sandbox:
// replay states and environment snapshots, plain JSON or zstd compressed.
package archive

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
)

const (
	// CompressedExt marks files written with zstd compression
	CompressedExt = ".zst"

	DefaultZstdLevel = 3
)

// WriteOptions controls how a file is written
type WriteOptions struct {
	Overwrite bool
	Compress  bool
	ZstdLevel int
}

// OptionsFor compresses when path ends with CompressedExt
func OptionsFor(path string, overwrite bool) WriteOptions {
	return WriteOptions{
		Overwrite: overwrite,
		Compress:  strings.HasSuffix(path, CompressedExt),
		ZstdLevel: DefaultZstdLevel,
	}
}

// WriteJSON encodes v to path
func WriteJSON(logger hclog.Logger, path string, v interface{}, opts WriteOptions) (err error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := common.CreateDirSafe(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// allow to overwrite the file only if it's explicitly set
	fileFlag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Overwrite {
		fileFlag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	fp, err := os.OpenFile(path, fileFlag, 0o644)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
	}()

	fbuf := bufio.NewWriterSize(fp, 1*1024*1024)

	var writeBuf io.Writer = fbuf

	var zstdWriter *zstd.Encoder

	if opts.Compress {
		level := opts.ZstdLevel
		if level == 0 {
			level = DefaultZstdLevel
		}

		zstdWriter, err = zstd.NewWriter(fbuf,
			zstd.WithEncoderLevel(
				zstd.EncoderLevelFromZstd(level),
			))
		if err != nil {
			return err
		}

		writeBuf = zstdWriter
	}

	enc := json.NewEncoder(writeBuf)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return err
	}

	if zstdWriter != nil {
		if err := zstdWriter.Close(); err != nil {
			return err
		}
	}

	if err := fbuf.Flush(); err != nil {
		return err
	}

	logger.Debug("wrote archive", "path", path, "compressed", opts.Compress)

	return nil
}

// WriteReplayStates writes one state as a plain document and several as
// a {states:[...]} file
func WriteReplayStates(logger hclog.Logger, path string, states []*types.ReplayState, opts WriteOptions) error {
	if len(states) == 1 {
		return WriteJSON(logger, path, states[0], opts)
	}

	return WriteJSON(logger, path, &types.ReplayStateFile{States: states}, opts)
}
