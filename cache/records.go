package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	progressStateFile  = "state.json"
	progressEventsFile = "events.jsonl"
)

// ProgressState is the resume point of checkpoint ingestion
type ProgressState struct {
	LastCheckpoint *uint64 `json:"last_checkpoint"`
	LastBlob       string  `json:"last_blob,omitempty"`
}

// ProgressEvent is one line of the append-only progress log
type ProgressEvent struct {
	RunID        string    `json:"run_id"`
	Time         time.Time `json:"time"`
	Kind         string    `json:"kind"`
	Checkpoint   uint64    `json:"checkpoint"`
	Objects      int       `json:"objects,omitempty"`
	Packages     int       `json:"packages,omitempty"`
	Transactions int       `json:"transactions,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// TxIndexEntry maps a transaction digest to its checkpoint
type TxIndexEntry struct {
	Digest     types.Digest `json:"digest"`
	Checkpoint uint64       `json:"checkpoint"`
}

func (s *Store) progressPath(name string) string {
	return filepath.Join(s.root, progressDir, name)
}

// LoadProgress returns the saved ingestion state, empty when none
func (s *Store) LoadProgress() (ProgressState, error) {
	var st ProgressState

	data, err := os.ReadFile(s.progressPath(progressStateFile))
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	} else if err != nil {
		return st, err
	}

	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("%w: progress state: %v", ErrInvalidEntry, err)
	}

	return st, nil
}

// SaveProgress replaces the ingestion state atomically
func (s *Store) SaveProgress(st ProgressState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	return common.SaveFileAtomic(s.progressPath(progressStateFile), data, 0o644)
}

func (s *Store) appendJSONLine(path string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.appendLock.Lock()
	defer s.appendLock.Unlock()

	if err := common.CreateDirSafe(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

// readJSONLines calls visit with every line of path. Lines that are not
// valid JSON, such as a torn last line, are skipped.
func readJSONLines(path string, visit func(line []byte) error) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := visit(line); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				continue
			}

			return err
		}
	}

	return scanner.Err()
}

// AppendEvent adds a line to the progress log
func (s *Store) AppendEvent(ev ProgressEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	return s.appendJSONLine(s.progressPath(progressEventsFile), ev)
}

// Events returns the progress log in append order
func (s *Store) Events() ([]ProgressEvent, error) {
	var out []ProgressEvent

	err := readJSONLines(s.progressPath(progressEventsFile), func(line []byte) error {
		var ev ProgressEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}

		out = append(out, ev)

		return nil
	})

	return out, err
}

func (s *Store) childrenPath(parent types.ObjectID) string {
	return filepath.Join(s.root, dynamicFieldsDir, hex64(parent)+".jsonl")
}

// AppendChildren records children of parent. Records are appended even
// when already present; readers keep one record per child and version.
func (s *Store) AppendChildren(parent types.ObjectID, children []types.DynamicFieldInfo) error {
	for _, c := range children {
		if err := s.appendJSONLine(s.childrenPath(parent), c); err != nil {
			return err
		}
	}

	return nil
}

// Children returns the recorded children of parent. With a checkpoint,
// records seen after it are skipped. Each child is reported at its newest
// remaining version.
func (s *Store) Children(parent types.ObjectID, atCheckpoint *uint64) ([]types.DynamicFieldInfo, error) {
	latest := map[types.ObjectID]int{}

	var out []types.DynamicFieldInfo

	err := readJSONLines(s.childrenPath(parent), func(line []byte) error {
		var c types.DynamicFieldInfo
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}

		if atCheckpoint != nil && c.Checkpoint != nil && *c.Checkpoint > *atCheckpoint {
			return nil
		}

		if i, ok := latest[c.ChildID]; ok {
			if c.Version > out[i].Version {
				out[i] = c
			}

			return nil
		}

		latest[c.ChildID] = len(out)
		out = append(out, c)

		return nil
	})

	return out, err
}

func (s *Store) txIndexPath(digest types.Digest) string {
	return filepath.Join(s.root, txIndexDir, digest.String()+".json")
}

// PutTxIndex records the checkpoint a transaction was included in
func (s *Store) PutTxIndex(digest types.Digest, checkpoint uint64) error {
	path := s.txIndexPath(digest)
	if common.FileExists(path) {
		return nil
	}

	data, err := json.Marshal(TxIndexEntry{Digest: digest, Checkpoint: checkpoint})
	if err != nil {
		return err
	}

	return common.SaveFileAtomic(path, data, 0o644)
}

// TxCheckpoint looks up the checkpoint of a transaction
func (s *Store) TxCheckpoint(digest types.Digest) (uint64, bool, error) {
	data, err := os.ReadFile(s.txIndexPath(digest))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}

	var e TxIndexEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return 0, false, fmt.Errorf("%w: tx index %s: %v", ErrInvalidEntry, digest, err)
	}

	return e.Checkpoint, true, nil
}
