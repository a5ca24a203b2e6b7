package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/util"
)

// Dump format: 4-byte magic, 1-byte version, 1-byte compression flag,
// 4-byte LE uncompressed payload size, then the body (lz4 block or raw).
// The payload is a sequence of length-prefixed key-value pairs covering the
// whole ledger state.
var dumpMagic = []byte("FMDS")

const (
	dumpVersion = byte(1)
	flagRaw     = byte(0)
	flagLZ4     = byte(1)
	// maxDumpPayload limits restored payload size, the state of this
	// ledger is tiny so anything past this is a corrupt file.
	maxDumpPayload = 1 << 28
)

// DumpState writes a compressed snapshot of the whole ledger state to w.
func (l *Ledger) DumpState(w io.Writer) error {
	l.lock.RLock()
	defer l.lock.RUnlock()

	var (
		payload bytes.Buffer
		prefix  [4]byte
	)
	for _, p := range statePrefixes() {
		l.store.Seek(p.Bytes(), func(k, v []byte) {
			binary.LittleEndian.PutUint32(prefix[:], uint32(len(k)))
			payload.Write(prefix[:])
			payload.Write(k)
			binary.LittleEndian.PutUint32(prefix[:], uint32(len(v)))
			payload.Write(prefix[:])
			payload.Write(v)
		})
	}

	compressed := make([]byte, lz4.CompressBlockBound(payload.Len()))
	size, err := lz4.CompressBlock(payload.Bytes(), compressed, nil)
	if err != nil {
		return fmt.Errorf("can't compress state: %w", err)
	}
	// CompressBlock signals incompressible data with a zero size, such
	// payloads are stored raw.
	body := compressed[:size]
	flag := flagLZ4
	if size == 0 {
		body = payload.Bytes()
		flag = flagRaw
	}

	if _, err := w.Write(dumpMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{dumpVersion, flag}); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(prefix[:], uint32(payload.Len()))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// RestoreState reads a snapshot produced by DumpState from r and applies it
// to the ledger's store in one batch.
func (l *Ledger) RestoreState(r io.Reader) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	header := make([]byte, len(dumpMagic)+2+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("can't read dump header: %w", err)
	}
	if !bytes.Equal(header[:len(dumpMagic)], dumpMagic) {
		return errors.New("not a state dump")
	}
	if header[len(dumpMagic)] != dumpVersion {
		return fmt.Errorf("unsupported dump version %d", header[len(dumpMagic)])
	}
	flag := header[len(dumpMagic)+1]
	rawSize := binary.LittleEndian.Uint32(header[len(dumpMagic)+2:])
	if rawSize > maxDumpPayload {
		return errors.New("corrupt state dump: payload too big")
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("can't read dump body: %w", err)
	}
	var payload []byte
	switch flag {
	case flagRaw:
		if uint32(len(body)) != rawSize {
			return errors.New("corrupt state dump: size mismatch")
		}
		payload = body
	case flagLZ4:
		payload = make([]byte, rawSize)
		size, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return fmt.Errorf("can't decompress state: %w", err)
		}
		payload = payload[:size]
	default:
		return fmt.Errorf("unknown dump compression flag %d", flag)
	}

	var (
		batch     = l.store.Batch()
		ownerKey  = string(storage.SYSOwner.Bytes())
		ownerSeen bool
	)
	// The dump fully replaces the current state, drop whatever the store
	// already holds. Puts below override pending deletes of the same key.
	for _, prefix := range statePrefixes() {
		l.store.Seek(prefix.Bytes(), func(k, _ []byte) {
			batch.Delete(k)
		})
	}
	for len(payload) > 0 {
		k, rest, err := readChunk(payload)
		if err != nil {
			return err
		}
		v, rest, err := readChunk(rest)
		if err != nil {
			return err
		}
		// The dumped owner has to match the one the ledger was
		// constructed with, checked before anything is written.
		if string(k) == ownerKey {
			dumped, err := util.Uint160DecodeBytesBE(v)
			if err != nil {
				return fmt.Errorf("corrupt owner in dump: %w", err)
			}
			if !dumped.Equals(l.owner) {
				return fmt.Errorf("dumped owner %s differs from %s", dumped, l.owner)
			}
			ownerSeen = true
		}
		batch.Put(k, v)
		payload = rest
	}
	if !ownerSeen {
		return errors.New("state dump has no owner")
	}
	if err := l.store.PutBatch(batch); err != nil {
		return fmt.Errorf("can't apply state dump: %w", err)
	}
	return nil
}

func readChunk(b []byte) (chunk []byte, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errors.New("corrupt state dump: truncated length")
	}
	n := binary.LittleEndian.Uint32(b)
	if uint32(len(b)-4) < n {
		return nil, nil, errors.New("corrupt state dump: truncated chunk")
	}
	return b[4 : 4+n], b[4+n:], nil
}

func statePrefixes() []storage.KeyPrefix {
	return []storage.KeyPrefix{
		storage.STBalance,
		storage.STFunder,
		storage.SYSOwner,
		storage.SYSFunderCount,
		storage.SYSHeldBalance,
		storage.SYSVersion,
	}
}
