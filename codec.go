package coursesync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// persistedState is the serialized form of the offline change manager: the
// full change map and the pending-id set, stored together under one key so a
// reload never observes one without the other.
type persistedState struct {
	Changes map[string]*OfflineChange `json:"changes"`
	Pending []string                  `json:"pending"`
}

// State blob layout: 4-byte magic, 1-byte version, 1-byte flags, body.
var stateMagic = [4]byte{'C', 'S', 'Y', 'N'}

const (
	stateVersion    = 1
	stateHeaderSize = 6
	flagCompressed  = 1 << 0
	flagEncrypted   = 1 << 1
)

// encodeState serializes manager state, optionally snappy-compressing and
// encrypting the JSON body.
func encodeState(st *persistedState, compress bool, enc *Encryptor) ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	var flags byte
	if compress {
		body = snappy.Encode(nil, body)
		flags |= flagCompressed
	}
	if enc != nil {
		sealed, err := enc.Encrypt(body)
		if err != nil {
			return nil, fmt.Errorf("encrypt state: %w", err)
		}
		body = sealed
		flags |= flagEncrypted
	}

	out := make([]byte, 0, stateHeaderSize+len(body))
	out = append(out, stateMagic[:]...)
	out = append(out, stateVersion, flags)
	return append(out, body...), nil
}

// decodeState deserializes a state blob produced by encodeState. Corrupt or
// unreadable blobs return ErrStoreCorruption so callers can fall back to
// empty state.
func decodeState(data []byte, enc *Encryptor) (*persistedState, error) {
	if len(data) < stateHeaderSize || !bytes.Equal(data[:4], stateMagic[:]) {
		return nil, newStoreError(StoreErrorTypeCorruption, "bad state header", "", nil)
	}
	if data[4] != stateVersion {
		return nil, newStoreError(StoreErrorTypeCorruption,
			fmt.Sprintf("unsupported state version %d", data[4]), "", nil)
	}

	flags := data[5]
	body := data[stateHeaderSize:]

	if flags&flagEncrypted != 0 {
		if enc == nil {
			return nil, newStoreError(StoreErrorTypeCorruption, "state is encrypted but no key configured", "", nil)
		}
		plain, err := enc.Decrypt(body)
		if err != nil {
			return nil, newStoreError(StoreErrorTypeCorruption, "decrypt state", "", err)
		}
		body = plain
	}
	if flags&flagCompressed != 0 {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, newStoreError(StoreErrorTypeCorruption, "decompress state", "", err)
		}
		body = decoded
	}

	var st persistedState
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, newStoreError(StoreErrorTypeCorruption, "decode state", "", err)
	}
	if st.Changes == nil {
		st.Changes = make(map[string]*OfflineChange)
	}
	return &st, nil
}
