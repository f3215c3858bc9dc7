package state

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

var ErrChildNotFound = errors.New("child object not found")

// ChildKey identifies a dynamic field child by its parent and key
type ChildKey struct {
	Parent    types.ObjectID
	Child     types.ObjectID
	KeyType   types.TypeTag
	KeyBytes  []byte
	ValueType *types.TypeTag
}

// KeyBasedChildFetcherFn loads a child from its parent and key
type KeyBasedChildFetcherFn func(key ChildKey) (*types.VersionedObject, error)

// VersionedChildFetcherFn loads a child at the newest version not above
// maxVersion
type VersionedChildFetcherFn func(parent, child types.ObjectID, maxVersion uint64) (*types.VersionedObject, error)

// NameBasedChildFetcherFn loads a child from its parent and the display
// form of its key
type NameBasedChildFetcherFn func(parent types.ObjectID, name string) (*types.VersionedObject, error)

// ChildFetchers are consulted in order when a child is not in the table.
// A fetcher signals a miss with (nil, nil) or ErrChildNotFound.
type ChildFetchers struct {
	ByKey     KeyBasedChildFetcherFn
	ByVersion VersionedChildFetcherFn
	ByName    NameBasedChildFetcherFn
}

func (f ChildFetchers) Empty() bool {
	return f.ByKey == nil && f.ByVersion == nil && f.ByName == nil
}

func (f ChildFetchers) fetch(key ChildKey, maxVersion uint64) (*types.VersionedObject, error) {
	attempts := []func() (*types.VersionedObject, error){}

	if f.ByKey != nil {
		attempts = append(attempts, func() (*types.VersionedObject, error) {
			return f.ByKey(key)
		})
	}

	if f.ByVersion != nil {
		attempts = append(attempts, func() (*types.VersionedObject, error) {
			return f.ByVersion(key.Parent, key.Child, maxVersion)
		})
	}

	if f.ByName != nil {
		if name, ok := KeyName(key.KeyType, key.KeyBytes); ok {
			attempts = append(attempts, func() (*types.VersionedObject, error) {
				return f.ByName(key.Parent, name)
			})
		}
	}

	for _, attempt := range attempts {
		obj, err := attempt()

		switch {
		case errors.Is(err, ErrChildNotFound):
			continue
		case err != nil:
			return nil, err
		case obj == nil:
			continue
		case obj.ID != key.Child:
			return nil, fmt.Errorf("fetcher returned %s for child %s", obj.ID, key.Child)
		}

		return obj, nil
	}

	return nil, ErrChildNotFound
}

// KeyName renders primitive and byte string keys in display form
func KeyName(keyType types.TypeTag, key []byte) (string, bool) {
	d := bcs.NewDecoder(key)

	switch keyType.Kind {
	case types.TypeBool:
		v, err := d.ReadBool()

		return strconv.FormatBool(v), err == nil
	case types.TypeU8, types.TypeU16, types.TypeU32, types.TypeU64:
		v, err := d.ReadBigUint(keyWidth(keyType.Kind))
		if err != nil {
			return "", false
		}

		return v.String(), true
	case types.TypeAddress:
		if len(key) != types.AddressLength {
			return "", false
		}

		return types.BytesToAddress(key).String(), true
	case types.TypeVector:
		if keyType.Elem.Kind != types.TypeU8 {
			return "", false
		}

		b, err := d.ReadBytes()
		if err != nil || !utf8.Valid(b) {
			return "", false
		}

		return string(b), true
	case types.TypeStruct:
		if keyType.Struct.Is(types.StdlibAddress, "string", "String") ||
			keyType.Struct.Is(types.StdlibAddress, "ascii", "String") {
			b, err := d.ReadBytes()
			if err != nil {
				return "", false
			}

			return string(b), true
		}
	}

	return "", false
}

func keyWidth(k types.TypeTagKind) int {
	switch k {
	case types.TypeU8:
		return 1
	case types.TypeU16:
		return 2
	case types.TypeU32:
		return 4
	default:
		return 8
	}
}
