package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"koru-delta/internal/hashing"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
)

// Kind distinguishes a normal write from a tombstone in the on-disk
// envelope.
type Kind uint8

const (
	KindPut       Kind = 1
	KindTombstone Kind = 2
)

// EnvelopeVersion is the wire version of the payload layout. Bump this,
// and switch on it in DecodeEnvelope, if the layout ever changes.
const EnvelopeVersion = 1

// Envelope is the versioned record payload described in spec.md §6:
// write_id, distinction_id, namespace/key, previous_write_id, a
// timestamp, and the value bytes that hash to distinction_id.
type Envelope struct {
	Kind          Kind
	WriteID       ids.WriteID
	DistinctionID hashing.DistinctionID
	Namespace     string
	Key           string
	PreviousWrite ids.WriteID
	HasPrevious   bool
	TimestampNS   int64
	Value         []byte
}

// Encode serializes e into the payload bytes WAL.Append writes after the
// length/CRC header.
func (e *Envelope) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(EnvelopeVersion)
	buf.WriteByte(byte(e.Kind))
	buf.Write(e.WriteID[:])
	buf.Write(e.DistinctionID[:])

	writeStr := func(s string) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		buf.Write(n[:])
		buf.WriteString(s)
	}
	writeStr(e.Namespace)
	writeStr(e.Key)

	if e.HasPrevious {
		buf.WriteByte(1)
		buf.Write(e.PreviousWrite[:])
	} else {
		buf.WriteByte(0)
	}

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(e.TimestampNS))
	buf.Write(ts[:])

	var vn [4]byte
	binary.LittleEndian.PutUint32(vn[:], uint32(len(e.Value)))
	buf.Write(vn[:])
	buf.Write(e.Value)

	return buf.Bytes()
}

// DecodeEnvelope parses payload bytes produced by Encode.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	r := bytes.NewReader(payload)

	readByte := func() (byte, error) {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: truncated envelope", kerr.Corruption)
		}
		return b, nil
	}

	version, err := readByte()
	if err != nil {
		return nil, err
	}
	if version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unknown envelope version %d", kerr.Corruption, version)
	}

	kindByte, err := readByte()
	if err != nil {
		return nil, err
	}

	e := &Envelope{Kind: Kind(kindByte)}

	if _, err := io.ReadFull(r, e.WriteID[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated write_id", kerr.Corruption)
	}
	if _, err := io.ReadFull(r, e.DistinctionID[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated distinction_id", kerr.Corruption)
	}

	readStr := func() (string, error) {
		var n [4]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return "", fmt.Errorf("%w: truncated length", kerr.Corruption)
		}
		size := binary.LittleEndian.Uint32(n[:])
		b := make([]byte, size)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("%w: truncated string", kerr.Corruption)
		}
		return string(b), nil
	}

	e.Namespace, err = readStr()
	if err != nil {
		return nil, err
	}
	e.Key, err = readStr()
	if err != nil {
		return nil, err
	}

	hasPrev, err := readByte()
	if err != nil {
		return nil, err
	}
	if hasPrev == 1 {
		e.HasPrevious = true
		if _, err := io.ReadFull(r, e.PreviousWrite[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated previous_write_id", kerr.Corruption)
		}
	}

	var ts [8]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated timestamp", kerr.Corruption)
	}
	e.TimestampNS = int64(binary.LittleEndian.Uint64(ts[:]))

	var vn [4]byte
	if _, err := io.ReadFull(r, vn[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated value length", kerr.Corruption)
	}
	size := binary.LittleEndian.Uint32(vn[:])
	e.Value = make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, e.Value); err != nil {
			return nil, fmt.Errorf("%w: truncated value", kerr.Corruption)
		}
	}

	return e, nil
}
