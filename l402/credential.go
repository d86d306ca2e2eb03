package l402

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"gopkg.in/macaroon.v2"
)

// Location is the fixed issuer location embedded in every minted macaroon.
const Location = "lsat-proxy"

// Credential pairs a decoded Identifier with the macaroon that carries it.
type Credential struct {
	Id  *Identifier
	Mac *macaroon.Macaroon
}

// New mints a fresh macaroon for the given identifier, signed with secret
// (which must equal IdentityDigest(id)).
func New(id *Identifier, secret [sha256.Size]byte) (*Credential, error) {
	idHex, err := IdentifierHex(id)
	if err != nil {
		return nil, err
	}

	mac, err := macaroon.New(
		secret[:], []byte(idHex), Location, macaroon.LatestVersion,
	)
	if err != nil {
		return nil, err
	}

	return &Credential{Id: id, Mac: mac}, nil
}

// AddCaveat attaches a first-party caveat to the credential's macaroon.
func (c *Credential) AddCaveat(cav Caveat) error {
	return c.Mac.AddFirstPartyCaveat(cav.Encode())
}

// FromMacaroon decodes a Credential's Identifier from an already-parsed
// macaroon, by reversing the hex encoding applied at mint time. It rejects
// unknown identifier versions.
func FromMacaroon(mac *macaroon.Macaroon) (*Credential, error) {
	id, err := IdentifierFromHex(string(mac.Id()))
	if err != nil {
		return nil, fmt.Errorf("unable to decode identifier: %w", err)
	}

	return &Credential{Id: id, Mac: mac}, nil
}

// VerifySignature checks that the credential's macaroon was signed with
// secret and returns its first-party caveats in decoded form. It returns an
// error if the HMAC chain doesn't validate under secret (a fabricated
// credential) or if any caveat predicate is malformed.
func (c *Credential) VerifySignature(secret [sha256.Size]byte) ([]Caveat, error) {
	rawCaveats, err := c.Mac.VerifySignature(secret[:], nil)
	if err != nil {
		return nil, err
	}

	caveats := make([]Caveat, 0, len(rawCaveats))
	for _, raw := range rawCaveats {
		cav, err := ParseCaveat([]byte(raw))
		if err != nil {
			return nil, err
		}
		caveats = append(caveats, cav)
	}

	return caveats, nil
}

// Serialize returns the base64-encoded macaroon used in the Authorization
// header and WWW-Authenticate challenge.
func (c *Credential) Serialize() (string, error) {
	b, err := c.Mac.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
