package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

type OwnerKind string

const (
	OwnerAddress   OwnerKind = "AddressOwner"
	OwnerObject    OwnerKind = "ObjectOwner"
	OwnerShared    OwnerKind = "Shared"
	OwnerImmutable OwnerKind = "Immutable"
)

var ErrUnknownOwner = errors.New("unknown owner kind")

// Owner describes who may use an object
type Owner struct {
	Kind                 OwnerKind `json:"kind"`
	Address              Address   `json:"address"`
	InitialSharedVersion uint64    `json:"initial_shared_version,omitempty"`
}

func AddressOwner(a Address) Owner {
	return Owner{Kind: OwnerAddress, Address: a}
}

func ObjectOwner(parent ObjectID) Owner {
	return Owner{Kind: OwnerObject, Address: parent}
}

func SharedOwner(initialVersion uint64) Owner {
	return Owner{Kind: OwnerShared, InitialSharedVersion: initialVersion}
}

func ImmutableOwner() Owner {
	return Owner{Kind: OwnerImmutable}
}

func (o Owner) String() string {
	switch o.Kind {
	case OwnerAddress, OwnerObject:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Address)
	case OwnerShared:
		return fmt.Sprintf("Shared(%d)", o.InitialSharedVersion)
	default:
		return string(o.Kind)
	}
}

// ObjectRef is the (id, version, digest) triple used by owned inputs
type ObjectRef struct {
	ID      ObjectID `json:"id"`
	Version uint64   `json:"version"`
	Digest  Digest   `json:"digest"`
}

// VersionedObject is an object at one version. It never changes once stored.
type VersionedObject struct {
	ID          ObjectID `json:"id"`
	Version     uint64   `json:"version"`
	Digest      Digest   `json:"digest"`
	Type        TypeTag  `json:"type_tag"`
	BCS         []byte   `json:"bcs_b64"`
	IsShared    bool     `json:"is_shared"`
	IsImmutable bool     `json:"is_immutable"`
	Owner       *Owner   `json:"owner,omitempty"`
}

// ObjectDigest hashes the contents of an object
func ObjectDigest(bcsBytes []byte) Digest {
	return Digest(Blake2b256([]byte("Object::"), bcsBytes))
}

// NewVersionedObject builds an object and computes its digest
func NewVersionedObject(id ObjectID, version uint64, typ TypeTag, contents []byte, owner Owner) *VersionedObject {
	o := owner

	return &VersionedObject{
		ID:          id,
		Version:     version,
		Digest:      ObjectDigest(contents),
		Type:        typ,
		BCS:         CopyBytes(contents),
		IsShared:    owner.Kind == OwnerShared,
		IsImmutable: owner.Kind == OwnerImmutable,
		Owner:       &o,
	}
}

func (o *VersionedObject) Ref() ObjectRef {
	return ObjectRef{ID: o.ID, Version: o.Version, Digest: o.Digest}
}

// EffectiveOwner derives an owner when the object carries none
func (o *VersionedObject) EffectiveOwner() Owner {
	switch {
	case o.Owner != nil:
		return *o.Owner
	case o.IsShared:
		return SharedOwner(o.Version)
	case o.IsImmutable:
		return ImmutableOwner()
	default:
		return AddressOwner(ZeroAddress)
	}
}

func (o *VersionedObject) Clone() *VersionedObject {
	cp := *o
	cp.Type = o.Type.Clone()
	cp.BCS = CopyBytes(o.BCS)

	if o.Owner != nil {
		owner := *o.Owner
		cp.Owner = &owner
	}

	return &cp
}

// SortObjectIDs sorts ids in place by canonical address and returns them
func SortObjectIDs(ids []ObjectID) []ObjectID {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})

	return ids
}

// DynamicFieldID derives the id of the object holding a dynamic field
func DynamicFieldID(parent ObjectID, keyType TypeTag, key []byte) ObjectID {
	var length [8]byte

	binary.LittleEndian.PutUint64(length[:], uint64(len(key)))

	return Blake2b256([]byte{0xf0}, parent[:], length[:], key, TypeTagBytes(keyType))
}
