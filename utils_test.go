package parallel

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveURL(t *testing.T) {
	cases := map[string]string{
		"alice":                          "cc://alice",
		"cc://alice":                     "cc://alice",
		"cc://alice/":                    "cc://alice",
		"cc://alice/broadcasts/17000000": "cc://alice",
		"  cc://alice/profile ":          "cc://alice",
	}
	for in, want := range cases {
		got, err := ArchiveURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "https://alice", "cc://", "alice/profile"} {
		_, err := ArchiveURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestRecordURLRoundTrip(t *testing.T) {
	u := RecordURL("cc://alice", "votes", "cc:%2F%2Fbob%2Fbroadcasts%2F1")
	assert.Equal(t, "cc://alice/votes/cc:%2F%2Fbob%2Fbroadcasts%2F1", u)

	archive, collection, key, err := ParseRecordURL(u)
	require.NoError(t, err)
	assert.Equal(t, "cc://alice", archive)
	assert.Equal(t, "votes", collection)
	assert.Equal(t, "cc:%2F%2Fbob%2Fbroadcasts%2F1", key)

	archive, collection, key, err = ParseRecordURL("cc://alice/profile")
	require.NoError(t, err)
	assert.Equal(t, "cc://alice", archive)
	assert.Equal(t, "profile", collection)
	assert.Empty(t, key)

	_, _, _, err = ParseRecordURL("cc://alice")
	assert.Error(t, err)
}

func TestComposeCCURI(t *testing.T) {
	u := ComposeCCURI("alice", "profile")
	assert.Equal(t, "cc://alice/profile", u)

	owner, key, err := ParseCCURI(u)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.Equal(t, "profile", key)
}

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	priv := hex.EncodeToString(crypto.FromECDSA(key))

	ccid, err := PrivKeyToAddr(priv, "con")
	require.NoError(t, err)
	assert.True(t, IsCCID(ccid))

	data := []byte("hello archive")
	sig, err := SignBytes(data, priv)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(data, sig, ccid))
	assert.Error(t, VerifySignature([]byte("tampered"), sig, ccid))
}
