package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
)

// ReadFile returns the contents of path, decompressed when the file starts
// with the zstd magic
func ReadFile(logger hclog.Logger, path string) ([]byte, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	fp, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	fbuf := bufio.NewReaderSize(fp, 8*1024*1024) // 8MB buffer

	// check whether the file is compressed
	fileMagic, err := fbuf.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var readBuf io.Reader = fbuf

	if IsCompressed(fileMagic) {
		zstdReader, err := zstd.NewReader(fbuf)
		if err != nil {
			return nil, err
		}
		defer zstdReader.Close()

		logger.Debug("archive is compressed with zstd", "path", path)

		readBuf = zstdReader
	}

	return io.ReadAll(readBuf)
}

// ReadJSON decodes the file at path into v
func ReadJSON(logger hclog.Logger, path string, v interface{}) error {
	data, err := ReadFile(logger, path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

// ReadReplayStates loads a single-state or multi-state file
func ReadReplayStates(logger hclog.Logger, path string) ([]*types.ReplayState, error) {
	data, err := ReadFile(logger, path)
	if err != nil {
		return nil, err
	}

	return types.ParseReplayStates(data)
}
