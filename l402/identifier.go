package l402

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/lntypes"
)

// TokenIDSize is the length in bytes of the random portion of an Identifier.
const TokenIDSize = 32

// Version represents the version of an LSAT identifier.
type Version uint16

const (
	// Version0 is the only identifier version this proxy currently mints
	// or accepts.
	Version0 Version = 0

	// LatestVersion is the version used for newly minted identifiers.
	LatestVersion = Version0
)

// ErrUnknownVersion is returned when decoding (or encoding) an identifier
// whose version this binary doesn't understand.
var ErrUnknownVersion = errors.New("unknown identifier version")

// TokenID is the random, unique portion of an Identifier.
type TokenID [TokenIDSize]byte

// String implements fmt.Stringer, allowing a TokenID to be logged safely
// with %v/%s without manual hex-encoding at call sites.
func (t TokenID) String() string {
	return fmt.Sprintf("%x", t[:])
}

// Identifier is the structured, serializable data that is bound to a
// credential: the version of the encoding, the payment hash of the invoice
// that must be settled to redeem it, and a random token ID that makes the
// identifier (and therefore the derived signing secret) unique per mint.
type Identifier struct {
	Version     Version
	PaymentHash lntypes.Hash
	TokenID     TokenID
}

// EncodeIdentifier serializes an Identifier to its fixed binary encoding:
// a 2-byte big-endian version, followed by the 32-byte payment hash and the
// 32-byte token ID.
func EncodeIdentifier(w io.Writer, id *Identifier) error {
	if id.Version != Version0 {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, id.Version)
	}

	if err := binary.Write(w, binary.BigEndian, uint16(id.Version)); err != nil {
		return err
	}
	if _, err := w.Write(id.PaymentHash[:]); err != nil {
		return err
	}
	_, err := w.Write(id.TokenID[:])
	return err
}

// DecodeIdentifier performs the inverse of EncodeIdentifier, rejecting any
// version this binary doesn't recognize.
func DecodeIdentifier(r io.Reader) (*Identifier, error) {
	var id Identifier

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, err
	}
	id.Version = Version(version)
	if id.Version != Version0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, id.Version)
	}

	if _, err := io.ReadFull(r, id.PaymentHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, id.TokenID[:]); err != nil {
		return nil, err
	}

	return &id, nil
}
