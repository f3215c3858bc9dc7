// Package checkpoint reads full checkpoint blobs and serves the
// transactions, objects and packages they carry.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/archive"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

var ErrInvalidCheckpoint = errors.New("invalid checkpoint blob")

// Transaction is one executed transaction together with the objects it
// read and wrote and the packages it published or used
type Transaction struct {
	Digest        types.Digest
	Sender        types.Address
	GasBudget     uint64
	GasPrice      uint64
	GasPayment    []types.ObjectRef
	PTB           types.ProgrammableTransaction
	Effects       types.EffectsSummary
	InputObjects  []*types.VersionedObject
	OutputObjects []*types.VersionedObject
	Packages      []*types.PackageData
}

// Data is a full checkpoint
type Data struct {
	Sequence        uint64
	Epoch           uint64
	TimestampMs     uint64
	ProtocolVersion uint64
	Transactions    []Transaction
}

// Fetched converts the transaction into the form the replay engine uses
func (d *Data) Fetched(tx *Transaction) *types.FetchedTransaction {
	seq := d.Sequence
	effects := tx.Effects

	if effects.Epoch == 0 {
		effects.Epoch = d.Epoch
	}

	if effects.ProtocolVersion == 0 {
		effects.ProtocolVersion = d.ProtocolVersion
	}

	return &types.FetchedTransaction{
		Digest: tx.Digest,
		Sender: tx.Sender,
		Gas: types.GasData{
			Payment: tx.GasPayment,
			Owner:   tx.Sender,
			Price:   tx.GasPrice,
			Budget:  tx.GasBudget,
		},
		PTB:         tx.PTB,
		Effects:     &effects,
		TimestampMs: d.TimestampMs,
		Checkpoint:  &seq,
	}
}

func encodeObjects(e *bcs.Encoder, objs []*types.VersionedObject) {
	e.WriteULEB128(uint64(len(objs)))

	for _, o := range objs {
		types.EncodeObject(e, o)
	}
}

func decodeObjects(d *bcs.Decoder) ([]*types.VersionedObject, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	// n is untrusted; the slice grows with what actually decodes
	var out []*types.VersionedObject

	for i := 0; i < n; i++ {
		o, err := types.DecodeObject(d)
		if err != nil {
			return nil, err
		}

		out = append(out, o)
	}

	return out, nil
}

func encodeTransaction(e *bcs.Encoder, tx *Transaction) {
	e.WriteFixedBytes(tx.Digest[:])
	e.WriteFixedBytes(tx.Sender.Bytes())
	e.WriteU64(tx.GasBudget)
	e.WriteU64(tx.GasPrice)
	e.WriteULEB128(uint64(len(tx.GasPayment)))

	for _, r := range tx.GasPayment {
		types.EncodeObjectRef(e, r)
	}

	types.EncodePTB(e, &tx.PTB)
	types.EncodeEffectsSummary(e, &tx.Effects)
	encodeObjects(e, tx.InputObjects)
	encodeObjects(e, tx.OutputObjects)
	e.WriteULEB128(uint64(len(tx.Packages)))

	for _, p := range tx.Packages {
		types.EncodePackage(e, p)
	}
}

//nolint:gocognit
func decodeTransaction(d *bcs.Decoder) (Transaction, error) {
	var tx Transaction

	digest, err := d.ReadFixedBytes(types.DigestLength)
	if err != nil {
		return tx, err
	}

	copy(tx.Digest[:], digest)

	if tx.Sender, err = types.DecodeAddress(d); err != nil {
		return tx, err
	}

	if tx.GasBudget, err = d.ReadU64(); err != nil {
		return tx, err
	}

	if tx.GasPrice, err = d.ReadU64(); err != nil {
		return tx, err
	}

	n, err := d.ReadLength()
	if err != nil {
		return tx, err
	}

	for i := 0; i < n; i++ {
		ref, err := types.DecodeObjectRef(d)
		if err != nil {
			return tx, err
		}

		tx.GasPayment = append(tx.GasPayment, ref)
	}

	if tx.PTB, err = types.DecodePTB(d); err != nil {
		return tx, err
	}

	effects, err := types.DecodeEffectsSummary(d)
	if err != nil {
		return tx, err
	}

	tx.Effects = *effects

	if tx.InputObjects, err = decodeObjects(d); err != nil {
		return tx, err
	}

	if tx.OutputObjects, err = decodeObjects(d); err != nil {
		return tx, err
	}

	if n, err = d.ReadLength(); err != nil {
		return tx, err
	}

	for i := 0; i < n; i++ {
		p, err := types.DecodePackage(d)
		if err != nil {
			return tx, err
		}

		tx.Packages = append(tx.Packages, p)
	}

	return tx, nil
}

// Encode writes the uncompressed BCS form of d
func Encode(d *Data) []byte {
	e := bcs.NewEncoder()
	e.WriteU64(d.Sequence)
	e.WriteU64(d.Epoch)
	e.WriteU64(d.TimestampMs)
	e.WriteU64(d.ProtocolVersion)
	e.WriteULEB128(uint64(len(d.Transactions)))

	for i := range d.Transactions {
		encodeTransaction(e, &d.Transactions[i])
	}

	return e.Bytes()
}

// Decode reads a checkpoint blob, decompressing it first when it starts
// with the zstd frame magic
func Decode(blob []byte) (*Data, error) {
	raw, err := archive.Decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	dec := bcs.NewDecoder(raw)
	d := &Data{}

	for _, field := range []*uint64{&d.Sequence, &d.Epoch, &d.TimestampMs, &d.ProtocolVersion} {
		if *field, err = dec.ReadU64(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
		}
	}

	n, err := dec.ReadLength()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	for i := 0; i < n; i++ {
		tx, err := decodeTransaction(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrInvalidCheckpoint, i, err)
		}

		d.Transactions = append(d.Transactions, tx)
	}

	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	return d, nil
}
