// pact-recon is the non-interactive batch counterpart to pactctl
// (spec §4.9): given a transcript directory, it sweeps every stored
// transcript, reconciles the ones still pending against a settlement
// rail, and rewrites them in place — following the teacher's
// `cmd/bootstrap` idiom of a single positional argument and a
// sequential, log.Fatalf-on-error setup with no flag parsing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/reconcile"
	"github.com/pactmesh/pact-core/pkg/settlement"
	"github.com/pactmesh/pact-core/pkg/transcriptstore"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: pact-recon <transcript_dir>")
	}
	transcriptDir := os.Args[1]

	// The sweep shares one mock rail across every transcript in this
	// batch run. A production deployment would instead resolve each
	// transcript's settlement_lifecycle.provider through the same
	// settlement.Router the orchestrator used to commit it.
	rail := settlement.NewMockProvider(nil)

	log.Printf("[pact-recon] sweeping %s", transcriptDir)
	swept, changed, failed, err := Sweep(context.Background(), transcriptDir, rail, time.Now().UnixMilli(), logf)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	log.Printf("[pact-recon] done: %d pending, %d updated, %d errors", swept, changed, failed)
}

func logf(format string, args ...any) {
	log.Printf(format, args...)
}

// Sweep lists every *.json transcript under transcriptDir, reconciles
// the ones still pending against rail at nowMs, and rewrites the
// changed ones in place. It reports how many transcripts were pending,
// how many were rewritten, and how many hit a read/decode/write error
// (each such transcript is skipped, not fatal to the rest of the sweep).
func Sweep(ctx context.Context, transcriptDir string, rail settlement.Provider, nowMs int64, logf func(format string, args ...any)) (swept, changed, failed int, err error) {
	entries, err := os.ReadDir(transcriptDir)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list transcript dir: %w", err)
	}

	store, err := transcriptstore.NewFileStore(transcriptDir)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("open transcript store: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		intentID := strings.TrimSuffix(entry.Name(), ".json")

		data, err := store.Read(ctx, intentID)
		if err != nil {
			logf("[pact-recon] skip %s: read failed: %v", intentID, err)
			failed++
			continue
		}
		var t contracts.Transcript
		if err := json.Unmarshal(data, &t); err != nil {
			logf("[pact-recon] skip %s: decode failed: %v", intentID, err)
			failed++
			continue
		}

		if t.SettlementLifecycle.Status != "pending" {
			continue
		}
		swept++

		res := reconcile.Reconcile(ctx, &t, rail, nowMs)
		if !res.Changed {
			continue
		}

		out, err := json.Marshal(t)
		if err != nil {
			logf("[pact-recon] %s: re-encode failed: %v", intentID, err)
			failed++
			continue
		}
		if _, err := store.Write(ctx, intentID, out); err != nil {
			logf("[pact-recon] %s: rewrite failed: %v", intentID, err)
			failed++
			continue
		}

		changed++
		if res.OK {
			logf("[pact-recon] %s: committed (paid=%v)", intentID, t.SettlementLifecycle.PaidAmount)
		} else {
			logf("[pact-recon] %s: failed (%s)", intentID, res.Code)
		}
	}

	return swept, changed, failed, nil
}
