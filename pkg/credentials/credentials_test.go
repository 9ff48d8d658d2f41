package credentials_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/credentials"
)

func serveCredential(t *testing.T, signer canon.Signer, claim credentials.Claim, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		env, err := canon.SignEnvelope(signer, "CREDENTIAL", claim)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(env))
	}))
}

func TestVerify_NoEndpointNotRequired(t *testing.T) {
	c := credentials.NewClient()
	res := c.Verify("", "pub", "compute.infer", false, 1000)
	require.False(t, res.Present)
	require.False(t, res.Verified)
}

func TestVerify_NoEndpointRequiredFails(t *testing.T) {
	c := credentials.NewClient()
	res := c.Verify("", "pub", "compute.infer", true, 1000)
	require.Equal(t, contracts.CodeProviderCredentialRequired, res.Code)
}

func TestVerify_ValidCredentialMatchesCapability(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	claim := credentials.Claim{IssuerID: "issuer-1", Capabilities: []string{"compute.infer"}, ExpiresAtMs: 9_999_999_999_999}
	srv := serveCredential(t, signer, claim, http.StatusOK)
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, signer.PublicKeyB58(), "compute.infer", true, 1000)
	require.True(t, res.Present)
	require.True(t, res.Verified)
	require.Equal(t, "issuer-1", res.IssuerID)
}

func TestVerify_SignerMismatchFails(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	claim := credentials.Claim{IssuerID: "issuer-1", Capabilities: []string{"compute.infer"}, ExpiresAtMs: 9_999_999_999_999}
	srv := serveCredential(t, signer, claim, http.StatusOK)
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, "some-other-pubkey", "compute.infer", true, 1000)
	require.Equal(t, contracts.CodeProviderSignerMismatch, res.Code)
}

func TestVerify_ExpiredCredentialFails(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	claim := credentials.Claim{IssuerID: "issuer-1", Capabilities: []string{"compute.infer"}, ExpiresAtMs: 500}
	srv := serveCredential(t, signer, claim, http.StatusOK)
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, signer.PublicKeyB58(), "compute.infer", true, 1000)
	require.Equal(t, contracts.CodeProviderCredentialInvalid, res.Code)
}

func TestVerify_CapabilityMismatchFails(t *testing.T) {
	signer, err := canon.NewEd25519Signer()
	require.NoError(t, err)
	claim := credentials.Claim{IssuerID: "issuer-1", Capabilities: []string{"compute.other"}, ExpiresAtMs: 9_999_999_999_999}
	srv := serveCredential(t, signer, claim, http.StatusOK)
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, signer.PublicKeyB58(), "compute.infer", true, 1000)
	require.Equal(t, contracts.CodeProviderCredentialInvalid, res.Code)
}

func TestVerify_NotFoundTolersWhenNotRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, "pub", "compute.infer", false, 1000)
	require.False(t, res.Present)
	require.Empty(t, res.Code)
}

func TestVerify_NotFoundFailsWhenRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := credentials.NewClient()
	res := c.Verify(srv.URL, "pub", "compute.infer", true, 1000)
	require.Equal(t, contracts.CodeProviderCredentialRequired, res.Code)
}
