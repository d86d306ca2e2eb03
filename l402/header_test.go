package l402

import (
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

func TestHeaderAuthorizationRoundTrip(t *testing.T) {
	t.Parallel()

	id := newTestIdentifier(t)
	secret, err := IdentityDigest(id)
	require.NoError(t, err)

	cred, err := New(id, secret)
	require.NoError(t, err)
	require.NoError(t, cred.AddCaveat(NewPathCaveat("/echo")))
	require.NoError(t, cred.AddCaveat(NewTimeCaveat(time.Now().Add(time.Minute))))

	preimage := lntypes.Preimage{1, 2, 3}

	header := http.Header{}
	require.NoError(t, SetHeader(header, cred.Mac, preimage))

	mac, parsedPreimage, err := FromHeader(header)
	require.NoError(t, err)
	require.Equal(t, preimage, parsedPreimage)

	decoded, err := FromMacaroon(mac)
	require.NoError(t, err)
	require.Equal(t, id, decoded.Id)
}

func TestHeaderMacaroonOnlyWithPreimageCaveat(t *testing.T) {
	t.Parallel()

	id := newTestIdentifier(t)
	secret, err := IdentityDigest(id)
	require.NoError(t, err)

	cred, err := New(id, secret)
	require.NoError(t, err)
	require.NoError(t, cred.AddCaveat(NewPathCaveat("/echo")))

	preimage := lntypes.Preimage{9, 9, 9}
	require.NoError(t, cred.AddCaveat(Caveat{
		Condition: PreimageCondition,
		Op:        '=',
		Value:     hex.EncodeToString(preimage[:]),
	}))

	macBytes, err := cred.Mac.MarshalBinary()
	require.NoError(t, err)

	header := http.Header{}
	header.Set(HeaderMacaroon, hex.EncodeToString(macBytes))

	mac, parsedPreimage, err := FromHeader(header)
	require.NoError(t, err)
	require.Equal(t, preimage, parsedPreimage)

	decoded, err := FromMacaroon(mac)
	require.NoError(t, err)
	require.Equal(t, id, decoded.Id)
}

func TestHeaderMissing(t *testing.T) {
	t.Parallel()

	_, _, err := FromHeader(http.Header{})
	require.Error(t, err)
}
