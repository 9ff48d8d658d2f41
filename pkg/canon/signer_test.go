package canon_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/canon"
)

type testMessage struct {
	Seq int64 `json:"seq"`
}

func TestSignEnvelope_VerifyEnvelopeRoundTrip(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)

	env, err := canon.SignEnvelope(signer, "STREAM_CHUNK", testMessage{Seq: 1})
	require.NoError(t, err)
	require.Equal(t, signer.PublicKeyB58(), env.SignerPublicKeyB58)

	ok, err := canon.VerifyEnvelope(env, "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = canon.VerifyEnvelope(env, signer.PublicKeyB58())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyEnvelope_RejectsWrongExpectedSigner(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	other, err := canon.NewEd25519Signer()
	require.NoError(t, err)

	env, err := canon.SignEnvelope(signer, "STREAM_CHUNK", testMessage{Seq: 1})
	require.NoError(t, err)

	ok, err := canon.VerifyEnvelope(env, other.PublicKeyB58())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyEnvelope_RejectsTamperedMessage(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)

	env, err := canon.SignEnvelope(signer, "STREAM_CHUNK", testMessage{Seq: 1})
	require.NoError(t, err)

	env.Message = testMessage{Seq: 2}
	ok, err := canon.VerifyEnvelope(env, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewEd25519SignerFromSeed_IsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	s1, err := canon.NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)
	s2, err := canon.NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, s1.PublicKeyB58(), s2.PublicKeyB58())

	sig1, err := s1.Sign([]byte("hello"))
	require.NoError(t, err)
	sig2, err := s2.Sign([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)
}

func TestNewEd25519SignerFromSeed_RejectsWrongSize(t *testing.T) {
	_, err := canon.NewEd25519SignerFromSeed([]byte("too-short"))
	require.Error(t, err)
}

func TestVerify_RejectsInvalidBase58(t *testing.T) {
	_, err := canon.Verify("not-valid-base58-!!!", "also-not-valid-!!!", []byte("data"))
	require.Error(t, err)
}

func TestVerify_RejectsWrongKeySize(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	sig, err := signer.Sign([]byte("data"))
	require.NoError(t, err)

	_, err = canon.Verify("2NEpo7TZRRrLZSi2U", sig, []byte("data"))
	require.Error(t, err)
}
