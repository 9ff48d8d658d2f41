package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/settlement"
	"github.com/pactmesh/pact-core/pkg/transcriptstore"
)

func writeTranscript(t *testing.T, dir, intentID string, tr contracts.Transcript) {
	t.Helper()
	store, err := transcriptstore.NewFileStore(dir)
	require.NoError(t, err)
	data, err := json.Marshal(tr)
	require.NoError(t, err)
	_, err = store.Write(context.Background(), intentID, data)
	require.NoError(t, err)
}

func readTranscript(t *testing.T, dir, intentID string) contracts.Transcript {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, intentID+".json"))
	require.NoError(t, err)
	var tr contracts.Transcript
	require.NoError(t, json.Unmarshal(data, &tr))
	return tr
}

func TestSweep_RewritesTranscriptWhenRailReportsCommitted(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "intent-1", contracts.Transcript{
		SettlementLifecycle: contracts.SettlementLifecycle{Status: "pending", HandleID: "handle-not-locked"},
	})

	rail := settlement.NewMockProvider(nil)
	swept, changed, failed, err := Sweep(context.Background(), dir, rail, 1000, func(string, ...any) {})
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	require.Equal(t, 1, changed)
	require.Equal(t, 0, failed)

	tr := readTranscript(t, dir, "intent-1")
	require.Equal(t, "committed", tr.SettlementLifecycle.Status)
	require.Len(t, tr.ReconcileEvents, 1)
}

func TestSweep_SkipsNonPendingTranscripts(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "intent-1", contracts.Transcript{
		SettlementLifecycle: contracts.SettlementLifecycle{Status: "committed"},
	})

	rail := settlement.NewMockProvider(nil)
	swept, changed, failed, err := Sweep(context.Background(), dir, rail, 1000, func(string, ...any) {})
	require.NoError(t, err)
	require.Equal(t, 0, swept)
	require.Equal(t, 0, changed)
	require.Equal(t, 0, failed)
}

func TestSweep_CountsDecodeErrorAsFailed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0o644))

	rail := settlement.NewMockProvider(nil)
	swept, changed, failed, err := Sweep(context.Background(), dir, rail, 1000, func(string, ...any) {})
	require.NoError(t, err)
	require.Equal(t, 0, swept)
	require.Equal(t, 0, changed)
	require.Equal(t, 1, failed)
}

func TestSweep_IgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))

	rail := settlement.NewMockProvider(nil)
	swept, changed, failed, err := Sweep(context.Background(), dir, rail, 1000, func(string, ...any) {})
	require.NoError(t, err)
	require.Equal(t, 0, swept)
	require.Equal(t, 0, changed)
	require.Equal(t, 0, failed)
}

func TestSweep_MissingDirReturnsError(t *testing.T) {
	rail := settlement.NewMockProvider(nil)
	_, _, _, err := Sweep(context.Background(), "/nonexistent/transcript/dir", rail, 1000, func(string, ...any) {})
	require.Error(t, err)
}
