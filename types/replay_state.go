package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var ErrNoReplayState = errors.New("no replay state in document")

// ReplayState is everything a historical transaction needs to execute
// offline
type ReplayState struct {
	Transaction     FetchedTransaction
	Objects         map[ObjectID]*VersionedObject
	Packages        map[Address]*PackageData
	ProtocolVersion uint64
	Epoch           uint64
	Checkpoint      *uint64
}

func NewReplayState(tx FetchedTransaction) *ReplayState {
	return &ReplayState{
		Transaction: tx,
		Objects:     make(map[ObjectID]*VersionedObject),
		Packages:    make(map[Address]*PackageData),
	}
}

type replayStateJSON struct {
	Transaction     FetchedTransaction `json:"transaction"`
	Objects         []*VersionedObject `json:"objects"`
	Packages        []*PackageData     `json:"packages"`
	ProtocolVersion uint64             `json:"protocol_version"`
	Epoch           uint64             `json:"epoch"`
	Checkpoint      *uint64            `json:"checkpoint,omitempty"`
}

// SortedObjects returns the objects ordered by id
func (s *ReplayState) SortedObjects() []*VersionedObject {
	out := make([]*VersionedObject, 0, len(s.Objects))
	for _, o := range s.Objects {
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Less(out[j].ID)
	})

	return out
}

// SortedPackages returns the packages ordered by storage id
func (s *ReplayState) SortedPackages() []*PackageData {
	out := make([]*PackageData, 0, len(s.Packages))
	for _, p := range s.Packages {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Less(out[j].Address)
	})

	return out
}

func (s *ReplayState) MarshalJSON() ([]byte, error) {
	return json.Marshal(replayStateJSON{
		Transaction:     s.Transaction,
		Objects:         s.SortedObjects(),
		Packages:        s.SortedPackages(),
		ProtocolVersion: s.ProtocolVersion,
		Epoch:           s.Epoch,
		Checkpoint:      s.Checkpoint,
	})
}

func (s *ReplayState) UnmarshalJSON(data []byte) error {
	var raw replayStateJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = *NewReplayState(raw.Transaction)
	s.ProtocolVersion = raw.ProtocolVersion
	s.Epoch = raw.Epoch
	s.Checkpoint = raw.Checkpoint

	for _, o := range raw.Objects {
		if o == nil {
			continue
		}

		if prev, ok := s.Objects[o.ID]; ok && prev.Version != o.Version {
			return fmt.Errorf("object %s listed at versions %d and %d", o.ID, prev.Version, o.Version)
		}

		s.Objects[o.ID] = o
	}

	for _, p := range raw.Packages {
		if p != nil {
			s.Packages[p.Address] = p
		}
	}

	return nil
}

// ReplayStateFile wraps several states in one document
type ReplayStateFile struct {
	States []*ReplayState `json:"states"`
}

// ParseReplayStates accepts either a single state or a {states:[...]}
// document
func ParseReplayStates(data []byte) ([]*ReplayState, error) {
	var probe map[string]json.RawMessage

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if _, ok := probe["states"]; ok {
		var file ReplayStateFile

		if err := json.Unmarshal(data, &file); err != nil {
			return nil, err
		}

		if len(file.States) == 0 {
			return nil, ErrNoReplayState
		}

		return file.States, nil
	}

	if _, ok := probe["transaction"]; !ok {
		return nil, ErrNoReplayState
	}

	state := &ReplayState{}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return []*ReplayState{state}, nil
}

// Find returns the state whose transaction digest matches
func (f *ReplayStateFile) Find(digest Digest) (*ReplayState, bool) {
	for _, s := range f.States {
		if s.Transaction.Digest == digest {
			return s, true
		}
	}

	return nil, false
}
