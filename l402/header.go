package l402

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/lightningnetwork/lnd/lntypes"
	"gopkg.in/macaroon.v2"
)

const (
	// HeaderAuthorization is the HTTP header field name used by REST
	// clients to send both the macaroon and the preimage.
	HeaderAuthorization = "Authorization"

	// HeaderMacaroonMD is the HTTP header field name used by certain REST
	// and gRPC clients to send only the macaroon.
	HeaderMacaroonMD = "Grpc-Metadata-Macaroon"

	// HeaderMacaroon is the HTTP header field name used by our own
	// clients to send only the macaroon.
	HeaderMacaroon = "Macaroon"

	// PreimageCondition is the caveat condition used when a client embeds
	// its preimage inside the macaroon itself, for transports that can't
	// carry it separately.
	PreimageCondition = "preimage"
)

var authRegex = regexp.MustCompile(`LSAT (.*?):([a-f0-9]{64})`)

// FromHeader tries to extract a credential's macaroon and its claimed
// preimage from an HTTP header, probing the three accepted shapes in order.
func FromHeader(header http.Header) (*macaroon.Macaroon, lntypes.Preimage, error) {
	switch {
	case header.Get(HeaderAuthorization) != "":
		return parseAuthorizationHeader(header.Get(HeaderAuthorization))

	case header.Get(HeaderMacaroonMD) != "":
		return parseMacaroonOnlyHeader(header.Get(HeaderMacaroonMD))

	case header.Get(HeaderMacaroon) != "":
		return parseMacaroonOnlyHeader(header.Get(HeaderMacaroon))

	default:
		return nil, lntypes.Preimage{}, errors.New("no LSAT header found")
	}
}

func parseAuthorizationHeader(value string) (*macaroon.Macaroon,
	lntypes.Preimage, error) {

	matches := authRegex.FindStringSubmatch(value)
	if len(matches) != 3 {
		return nil, lntypes.Preimage{}, fmt.Errorf("invalid auth "+
			"header format: %s", value)
	}

	macBase64, preimageHex := matches[1], matches[2]
	macBytes, err := base64.StdEncoding.DecodeString(macBase64)
	if err != nil {
		return nil, lntypes.Preimage{}, fmt.Errorf("base64 decode of "+
			"macaroon failed: %w", err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, lntypes.Preimage{}, fmt.Errorf("unable to "+
			"unmarshal macaroon: %w", err)
	}

	preimage, err := lntypes.MakePreimageFromStr(preimageHex)
	if err != nil {
		return nil, lntypes.Preimage{}, fmt.Errorf("hex decode of "+
			"preimage failed: %w", err)
	}

	return mac, preimage, nil
}

func parseMacaroonOnlyHeader(value string) (*macaroon.Macaroon,
	lntypes.Preimage, error) {

	macBytes, err := hex.DecodeString(value)
	if err != nil {
		return nil, lntypes.Preimage{}, fmt.Errorf("hex decode of "+
			"macaroon failed: %w", err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, lntypes.Preimage{}, fmt.Errorf("unable to "+
			"unmarshal macaroon: %w", err)
	}

	for _, rawCaveat := range mac.Caveats() {
		cav, err := ParseCaveat(rawCaveat.Id)
		if err != nil {
			continue
		}
		if cav.Condition != PreimageCondition {
			continue
		}

		preimage, err := lntypes.MakePreimageFromStr(cav.Value)
		if err != nil {
			return nil, lntypes.Preimage{}, fmt.Errorf("hex "+
				"decode of preimage failed: %w", err)
		}
		return mac, preimage, nil
	}

	return nil, lntypes.Preimage{}, errors.New("preimage caveat not found")
}

// SetHeader sets the standard Authorization header for the given credential
// and preimage, as presented by a client.
func SetHeader(header http.Header, mac *macaroon.Macaroon,
	preimage lntypes.Preimage) error {

	macBytes, err := mac.MarshalBinary()
	if err != nil {
		return err
	}

	value := fmt.Sprintf(
		"LSAT %s:%s",
		base64.StdEncoding.EncodeToString(macBytes),
		preimage.String(),
	)
	header.Set(HeaderAuthorization, value)
	return nil
}
