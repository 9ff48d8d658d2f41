package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/contracts"
)

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl"}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "USAGE")
}

func TestRun_UnknownCommandReturnsNonZero(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl", "bogus"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Unknown command")
}

func TestRun_VersionPrintsVersionString(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl", "version"}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "pactctl")
}

func TestRun_AcquireHappyPathReturnsZero(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "acquire",
		"--intent-type", "compute.infer",
		"--max-price", "5",
		"--demo-seller-price", "1",
		"--transcript-dir", dir,
	}, &out, &errOut)
	require.Equal(t, 0, code, "stderr: %s", errOut.String())

	var result struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.True(t, result.OK)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestRun_AcquireFailsWhenQuoteExceedsMaxPrice(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "acquire",
		"--intent-type", "compute.infer",
		"--max-price", "0.01",
		"--demo-seller-price", "100",
	}, &out, &errOut)
	require.Equal(t, 1, code)

	var result struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.False(t, result.OK)
}

func TestRun_AcquireBadPolicyPathFails(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "acquire",
		"--policy", "/nonexistent/policy.yaml",
	}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Error loading policy")
}

func TestRun_ReconcileRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl", "reconcile"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "required")
}

func TestRun_ReconcileOnSettledTranscriptIsNoOp(t *testing.T) {
	dir := t.TempDir()
	tr := contracts.Transcript{
		SettlementLifecycle: contracts.SettlementLifecycle{Status: "committed"},
	}
	data, err := json.Marshal(tr)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intent-1.json"), data, 0o644))

	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "reconcile",
		"--intent-id", "intent-1",
		"--transcript-dir", dir,
	}, &out, &errOut)
	require.Equal(t, 0, code, "stderr: %s", errOut.String())
}

func TestRun_ReconcileMissingTranscriptFails(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "reconcile",
		"--intent-id", "nope",
		"--transcript-dir", dir,
	}, &out, &errOut)
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "Error reading transcript")
}

func TestRun_DisputeOpenRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl", "dispute", "open"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "required")
}

func TestRun_DisputeOpenSucceedsOnValidReceipt(t *testing.T) {
	dir := t.TempDir()
	receiptPath := filepath.Join(dir, "receipt.json")
	receipt := contracts.Receipt{Fulfilled: true, PaidAmount: 1.5, TimestampMs: 1000}
	data, err := json.Marshal(receipt)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(receiptPath, data, 0o644))

	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
schema_version: "1.0.0"
disputes:
  enabled: true
  window_ms: 86400000
`), 0o644))

	var out, errOut bytes.Buffer
	code := Run([]string{
		"pactctl", "dispute", "open",
		"--receipt", receiptPath,
		"--reason", "service not rendered",
		"--policy", policyPath,
		"--now-ms", "2000",
	}, &out, &errOut)
	require.Equal(t, 0, code, "stderr: %s", errOut.String())

	var rec contracts.DisputeRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	require.Equal(t, "service not rendered", rec.Reason)
}

func TestRun_DisputeDecideIsNotYetWiredAsStandaloneCLI(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"pactctl", "dispute", "decide"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "Unknown dispute subcommand")
}
