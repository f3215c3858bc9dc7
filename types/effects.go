package types

import "sort"

// ChangeOperation classifies an entry of the recorded changed_objects list
type ChangeOperation string

const (
	OpCreated   ChangeOperation = "created"
	OpMutated   ChangeOperation = "mutated"
	OpDeleted   ChangeOperation = "deleted"
	OpWrapped   ChangeOperation = "wrapped"
	OpUnwrapped ChangeOperation = "unwrapped"
)

// ChangedObject records the input version of a touched object.
// InputVersion is zero for created and unwrapped objects.
type ChangedObject struct {
	ID            ObjectID        `json:"id"`
	InputVersion  uint64          `json:"input_version"`
	OutputVersion uint64          `json:"output_version"`
	Operation     ChangeOperation `json:"operation"`
	Transferred   bool            `json:"transferred,omitempty"`
	Type          *TypeTag        `json:"type_tag,omitempty"`
}

// ObjectVersion pins an object to one version
type ObjectVersion struct {
	ID      ObjectID `json:"id"`
	Version uint64   `json:"version"`
}

// GasSummary is the charged cost of a transaction
type GasSummary struct {
	ComputationCost uint64 `json:"computation_cost"`
	StorageCost     uint64 `json:"storage_cost"`
	StorageRebate   uint64 `json:"storage_rebate"`
	Total           uint64 `json:"total"`
}

// GasUsed is computation plus storage, before rebates
func (g GasSummary) GasUsed() uint64 {
	return g.ComputationCost + g.StorageCost
}

// EffectsSummary is the on-chain record of a transaction
type EffectsSummary struct {
	Success                       bool            `json:"success"`
	Error                         string          `json:"error,omitempty"`
	Gas                           GasSummary      `json:"gas_used"`
	ChangedObjects                []ChangedObject `json:"changed_objects"`
	UnchangedConsensusObjects     []ObjectVersion `json:"unchanged_consensus_objects"`
	UnchangedLoadedRuntimeObjects []ObjectVersion `json:"unchanged_loaded_runtime_objects"`
	LamportVersion                uint64          `json:"lamport_version"`
	Epoch                         uint64          `json:"epoch"`
	ProtocolVersion               uint64          `json:"protocol_version"`
}

func (s *EffectsSummary) ids(match func(ChangedObject) bool) []ObjectID {
	var out []ObjectID

	for _, c := range s.ChangedObjects {
		if match(c) {
			out = append(out, c.ID)
		}
	}

	return SortObjectIDs(out)
}

func (s *EffectsSummary) Created() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Operation == OpCreated })
}

func (s *EffectsSummary) Mutated() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Operation == OpMutated })
}

func (s *EffectsSummary) Deleted() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Operation == OpDeleted })
}

func (s *EffectsSummary) Wrapped() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Operation == OpWrapped })
}

func (s *EffectsSummary) Unwrapped() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Operation == OpUnwrapped })
}

func (s *EffectsSummary) Transferred() []ObjectID {
	return s.ids(func(c ChangedObject) bool { return c.Transferred })
}

// Event is emitted by event::emit
type Event struct {
	Type      TypeTag `json:"type"`
	PackageID Address `json:"package"`
	Module    string  `json:"module"`
	Sender    Address `json:"sender"`
	BCS       []byte  `json:"bcs"`
}

// TypedValue is a BCS value with its type
type TypedValue struct {
	Type TypeTag `json:"type"`
	BCS  []byte  `json:"bcs"`
}

// ObjectChange describes one object touched by local execution
type ObjectChange struct {
	ID            ObjectID `json:"id"`
	InputVersion  *uint64  `json:"input_version,omitempty"`
	OutputVersion *uint64  `json:"output_version,omitempty"`
	Type          TypeTag  `json:"type_tag"`
	Owner         *Owner   `json:"owner,omitempty"`
	Operation     string   `json:"operation"`
}

// TransactionEffects is the result of local execution
type TransactionEffects struct {
	Success            bool           `json:"success"`
	Error              string         `json:"error,omitempty"`
	ErrorKind          string         `json:"error_kind,omitempty"`
	GasUsed            uint64         `json:"gas_used"`
	GasSummary         GasSummary     `json:"gas_summary"`
	Created            []ObjectID     `json:"created"`
	Mutated            []ObjectID     `json:"mutated"`
	Deleted            []ObjectID     `json:"deleted"`
	Wrapped            []ObjectID     `json:"wrapped"`
	Unwrapped          []ObjectID     `json:"unwrapped"`
	Transferred        []ObjectID     `json:"transferred"`
	Received           []ObjectID     `json:"received"`
	Events             []Event        `json:"events"`
	ReturnValues       [][]TypedValue `json:"return_values"`
	FailedCommandIndex *int           `json:"failed_command_index,omitempty"`
	CommandsSucceeded  int            `json:"commands_succeeded"`
	ObjectChanges      []ObjectChange `json:"object_changes"`
	LamportVersion     uint64         `json:"lamport_version"`
}

// SortLists sorts every object id list and the object changes
func (e *TransactionEffects) SortLists() {
	for _, l := range [][]ObjectID{
		e.Created, e.Mutated, e.Deleted, e.Wrapped, e.Unwrapped, e.Transferred, e.Received,
	} {
		SortObjectIDs(l)
	}

	sort.Slice(e.ObjectChanges, func(i, j int) bool {
		return e.ObjectChanges[i].ID.Less(e.ObjectChanges[j].ID)
	})
}
