// Package source defines the adapters the sandbox hydrates state from and
// the wrappers composing them: retry, fallback and the cache front.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

var (
	// ErrAdapterUnavailable marks a failure of the transport behind an
	// adapter. Callers may retry.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	ErrTransactionMissing = errors.New("transaction not found")
	ErrCheckpointMissing  = errors.New("checkpoint not found")
)

type HydrationKind string

const (
	ObjectMissing      HydrationKind = "ObjectMissing"
	PackageMissing     HydrationKind = "PackageMissing"
	VersionUnavailable HydrationKind = "VersionUnavailable"
)

// HydrationError reports state a source could not provide. The replay
// engine recovers from it by escalating hydration.
type HydrationError struct {
	Kind    HydrationKind
	ID      types.ObjectID
	Version *uint64
	Err     error
}

func (e *HydrationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.ID)
	if e.Version != nil {
		msg = fmt.Sprintf("%s@%d", msg, *e.Version)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *HydrationError) Unwrap() error {
	return e.Err
}

func ObjectMissingError(id types.ObjectID, version uint64) error {
	return &HydrationError{Kind: ObjectMissing, ID: id, Version: &version}
}

func PackageMissingError(id types.Address) error {
	return &HydrationError{Kind: PackageMissing, ID: id}
}

// IsHydrationError reports whether err is a HydrationError, optionally of
// one of kinds
func IsHydrationError(err error, kinds ...HydrationKind) bool {
	var he *HydrationError
	if !errors.As(err, &he) {
		return false
	}

	if len(kinds) == 0 {
		return true
	}

	for _, k := range kinds {
		if he.Kind == k {
			return true
		}
	}

	return false
}

// TransactionSource serves historical transactions and object versions
type TransactionSource interface {
	FetchTransaction(ctx context.Context, digest types.Digest) (*types.FetchedTransaction, error)
	FetchObjectAtVersion(ctx context.Context, id types.ObjectID, version uint64) (*types.VersionedObject, error)
}

// PackageSource serves package bytecode by storage id
type PackageSource interface {
	FetchPackage(ctx context.Context, storageID types.Address) (*types.PackageData, error)
}

// DynamicFieldSource enumerates the children of a parent object. A nil
// checkpoint asks for the latest known children.
type DynamicFieldSource interface {
	EnumerateChildren(ctx context.Context, parent types.ObjectID, atCheckpoint *uint64) ([]types.DynamicFieldInfo, error)
}

// CheckpointSource serves full checkpoint blobs
type CheckpointSource interface {
	FetchCheckpoint(ctx context.Context, seq uint64) ([]byte, error)
}

// Bundle names the four source kinds. Any member may be nil.
type Bundle struct {
	Transactions  TransactionSource
	Packages      PackageSource
	DynamicFields DynamicFieldSource
	Checkpoints   CheckpointSource
}

// Full is an adapter serving transactions, packages and dynamic fields
type Full interface {
	TransactionSource
	PackageSource
	DynamicFieldSource
}

// BundleOf fills every member s implements
func BundleOf(s interface{}) Bundle {
	var b Bundle

	if t, ok := s.(TransactionSource); ok {
		b.Transactions = t
	}

	if p, ok := s.(PackageSource); ok {
		b.Packages = p
	}

	if d, ok := s.(DynamicFieldSource); ok {
		b.DynamicFields = d
	}

	if c, ok := s.(CheckpointSource); ok {
		b.Checkpoints = c
	}

	return b
}

// Unavailable is an adapter for a transport that is configured but not
// reachable from this build. Every call fails with ErrAdapterUnavailable.
type Unavailable struct {
	Name     string
	Endpoint string
}

var _ Full = (*Unavailable)(nil)

func (u *Unavailable) err() error {
	return fmt.Errorf("%w: %s at %q", ErrAdapterUnavailable, u.Name, u.Endpoint)
}

func (u *Unavailable) FetchTransaction(context.Context, types.Digest) (*types.FetchedTransaction, error) {
	return nil, u.err()
}

func (u *Unavailable) FetchObjectAtVersion(context.Context, types.ObjectID, uint64) (*types.VersionedObject, error) {
	return nil, u.err()
}

func (u *Unavailable) FetchPackage(context.Context, types.Address) (*types.PackageData, error) {
	return nil, u.err()
}

func (u *Unavailable) EnumerateChildren(context.Context, types.ObjectID, *uint64) ([]types.DynamicFieldInfo, error) {
	return nil, u.err()
}
