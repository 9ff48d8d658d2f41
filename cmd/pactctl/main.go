// pactctl is the interactive driver for the acquire/reconcile/dispute
// operations this module exposes, following the teacher's `cmd/helm`
// argv-dispatch shape: a thin `Run(args, stdout, stderr) int` switch
// over subcommands, each parsing its own flag.FlagSet.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/pactmesh/pact-core/pkg/config"
	"github.com/pactmesh/pact-core/pkg/contracts"
	"github.com/pactmesh/pact-core/pkg/credentials"
	"github.com/pactmesh/pact-core/pkg/directory"
	"github.com/pactmesh/pact-core/pkg/disputes"
	"github.com/pactmesh/pact-core/pkg/events"
	"github.com/pactmesh/pact-core/pkg/orchestrator"
	"github.com/pactmesh/pact-core/pkg/policy"
	"github.com/pactmesh/pact-core/pkg/policyloader"
	"github.com/pactmesh/pact-core/pkg/reconcile"
	"github.com/pactmesh/pact-core/pkg/reputation"
	"github.com/pactmesh/pact-core/pkg/settlement"
	"github.com/pactmesh/pact-core/pkg/settlement/idemprovider"
	"github.com/pactmesh/pact-core/pkg/settlement/idemstore"
	"github.com/pactmesh/pact-core/pkg/transcriptstore"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "acquire":
		return runAcquireCmd(args[2:], stdout, stderr)
	case "reconcile":
		return runReconcileCmd(args[2:], stdout, stderr)
	case "dispute":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: pactctl dispute open [flags]")
			return 2
		}
		return runDisputeCmd(args[2], args[3:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "pactctl 0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pactctl — agent-to-agent commerce protocol driver")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  pactctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  acquire     Run one acquisition against a demo provider (--intent-type, --max-price, --mode, --policy)")
	fmt.Fprintln(w, "  reconcile   Poll a pending settlement handle for one stored transcript (--intent-id, --transcript-dir)")
	fmt.Fprintln(w, "  dispute     open a dispute against a settled receipt (dispute open)")
	fmt.Fprintln(w, "  version     Show version information")
	fmt.Fprintln(w, "  help        Show this help")
}

// loadPolicy resolves path via policyloader+policy.Compile, falling back
// to policy.Default() when path is empty (demo/local use).
func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	raw, err := policyloader.Load(path)
	if err != nil {
		return nil, err
	}
	return policy.Compile(raw)
}

// openReputationStore selects a reputation.Store backend per
// cfg.ReputationStore (SPEC_FULL.md's C13 "Store Backends"), defaulting
// to an in-memory store for local/demo use.
func openReputationStore(cfg *config.Config) (reputation.Store, error) {
	switch cfg.ReputationStore {
	case "", "memory":
		return reputation.NewMemory(), nil
	case "redis":
		return reputation.NewRedis(cfg.ReputationDSN, "", 0), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.ReputationDSN)
		if err != nil {
			return nil, fmt.Errorf("open reputation sqlite db: %w", err)
		}
		return reputation.NewSQLite(db)
	default:
		return nil, fmt.Errorf("unknown PACT_REPUTATION_STORE %q (want memory|redis|sqlite)", cfg.ReputationStore)
	}
}

// wireIdempotency selects an idemstore.Store backend per
// cfg.IdempotencyStore and wraps rail's Commit in an
// idemprovider.IdempotentProvider so repeated calls under the same
// idempotency key replay rather than re-settle. A "memory" store is
// equivalent to rail's own in-process idempotency bookkeeping, so it is
// still worth wiring since redis/postgres make that bookkeeping survive
// process restarts.
func wireIdempotency(cfg *config.Config, rail settlement.Provider) (settlement.Provider, error) {
	var store idemstore.Store
	switch cfg.IdempotencyStore {
	case "", "memory":
		store = idemstore.NewMemory()
	case "redis":
		store = idemstore.NewRedis(cfg.IdempotencyDSN, "", 0)
	case "postgres":
		db, err := sql.Open("postgres", cfg.IdempotencyDSN)
		if err != nil {
			return nil, fmt.Errorf("open idempotency postgres db: %w", err)
		}
		pg, err := idemstore.NewPostgres(db)
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		return nil, fmt.Errorf("unknown PACT_IDEMPOTENCY_STORE %q (want memory|redis|postgres)", cfg.IdempotencyStore)
	}
	return idemprovider.Wrap(rail, store), nil
}

// seedDemoDirectory registers one in-process stub seller so `acquire`
// is runnable without a real counterparty process, per spec §6's
// Endpoint-less "stub quote" provider shape.
func seedDemoDirectory(dir directory.Directory, intentType string, price float64) {
	_ = dir.Register(contracts.Provider{
		ProviderID:        "demo-seller",
		PubkeyB58:         "demo",
		IntentTypes:       []string{intentType},
		Region:            "us",
		BaselineLatencyMs: 50,
		FailureRate:       0.01,
		Quote:             &contracts.StubQuote{Price: price, FirmQuote: true},
	})
}

func runAcquireCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("acquire", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		intentType   string
		scope        string
		maxPrice     float64
		mode         string
		policyPath   string
		buyerAgentID string
		saveTo       string
		demoPrice    float64
	)
	cmd.StringVar(&intentType, "intent-type", "compute.infer", "intent_type to acquire")
	cmd.StringVar(&scope, "scope", "", "scope string, normalized per the canonical form")
	cmd.Float64Var(&maxPrice, "max-price", 1.0, "buyer's max_price ceiling")
	cmd.StringVar(&mode, "mode", "hash_reveal", "settlement mode: hash_reveal|streaming")
	cmd.StringVar(&policyPath, "policy", "", "path to a YAML policy document (defaults to policy.Default())")
	cmd.StringVar(&buyerAgentID, "buyer", "buyer-cli", "buyer_agent_id")
	cmd.StringVar(&saveTo, "transcript-dir", "", "if set, persist the sealed transcript under this directory")
	cmd.Float64Var(&demoPrice, "demo-seller-price", 0.5, "ask price for the auto-registered demo seller")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()

	pol, err := loadPolicy(policyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading policy: %v\n", err)
		return 2
	}

	if saveTo == "" {
		saveTo = cfg.TranscriptDir
	}

	dir := directory.NewInMemory()
	seedDemoDirectory(dir, intentType, demoPrice)

	buyerSigner, err := canon.NewEd25519Signer()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating buyer signer: %v\n", err)
		return 1
	}
	sellerSigner, err := canon.NewEd25519Signer()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating seller signer: %v\n", err)
		return 1
	}

	mockRail := settlement.NewMockProvider(map[string]float64{buyerAgentID: maxPrice * 100, "demo-seller": maxPrice * 100})
	rail, err := wireIdempotency(cfg, mockRail)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring idempotency store: %v\n", err)
		return 1
	}
	cel, err := policy.NewCELEvaluator()
	if err != nil {
		fmt.Fprintf(stderr, "Error compiling routing rules: %v\n", err)
		return 1
	}
	router := settlement.NewRouter(pol, cel)

	repStore, err := openReputationStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening reputation store: %v\n", err)
		return 1
	}

	var transcriptOut transcriptstore.Store
	if saveTo != "" {
		fs, err := transcriptstore.NewFileStore(saveTo)
		if err != nil {
			fmt.Fprintf(stderr, "Error creating transcript store: %v\n", err)
			return 1
		}
		transcriptOut = fs
	}

	deps := &orchestrator.Deps{
		BuyerSigner:  buyerSigner,
		SellerSigner: sellerSigner,
		Directory:    dir,
		Reputation:   repStore,
		Policy:       pol,
		Credentials:  credentials.NewClient(),
		ZKKYAKeyFn:   func(issuerID string) (any, error) { return nil, fmt.Errorf("zkkya: no keys configured for issuer %q", issuerID) },
		Router:       router,
		ProviderByName: map[string]settlement.Provider{
			pol.Settlement.Routing.DefaultProvider: rail,
			"mock": rail,
		},
		Runner:        events.NewRunner(events.LoggingHandler(func(format string, a ...any) { fmt.Fprintf(stderr, format+"\n", a...) })),
		TranscriptOut: transcriptOut,
	}

	result := orchestrator.Acquire(context.Background(), orchestrator.AcquireInput{
		IntentType:     intentType,
		Scope:          scope,
		MaxPrice:       maxPrice,
		ModeOverride:   mode,
		BuyerAgentID:   buyerAgentID,
		SaveTranscript: saveTo != "",
	}, deps)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if !result.OK {
		return 1
	}
	return 0
}

func runReconcileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var intentID, transcriptDir string
	cmd.StringVar(&intentID, "intent-id", "", "intent_id of the pending transcript to reconcile (REQUIRED)")
	cmd.StringVar(&transcriptDir, "transcript-dir", "", "directory a transcriptstore.FileStore was given (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if intentID == "" || transcriptDir == "" {
		fmt.Fprintln(stderr, "Error: --intent-id and --transcript-dir are required")
		return 2
	}

	store, err := transcriptstore.NewFileStore(transcriptDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening transcript store: %v\n", err)
		return 1
	}
	ctx := context.Background()
	data, err := store.Read(ctx, intentID)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading transcript: %v\n", err)
		return 1
	}
	var t contracts.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		fmt.Fprintf(stderr, "Error decoding transcript: %v\n", err)
		return 1
	}

	// The reconciliation demo rail has no persisted ledger of its own
	// (each invocation constructs a fresh MockProvider), so this command
	// only demonstrates the no-handle/not-pending short-circuits; a real
	// deployment wires the same rail the orchestrator committed against.
	provider := settlement.NewMockProvider(nil)
	res := reconcile.Reconcile(ctx, &t, provider, nowMs())

	out, err := json.Marshal(t)
	if err == nil {
		_, _ = store.Write(ctx, intentID, out)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if !res.OK {
		return 1
	}
	return 0
}

func runDisputeCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "open":
		return runDisputeOpenCmd(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown dispute subcommand: %s (only 'open' is wired as a standalone CLI demo; 'decide'/'remedy' require an arbiter signer and a live rail, see pkg/disputes)\n", sub)
		return 2
	}
}

func runDisputeOpenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("dispute open", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		receiptPath string
		reason      string
		policyPath  string
		nowMs       int64
	)
	cmd.StringVar(&receiptPath, "receipt", "", "path to a JSON-encoded contracts.Receipt (REQUIRED)")
	cmd.StringVar(&reason, "reason", "", "dispute reason (REQUIRED)")
	cmd.StringVar(&policyPath, "policy", "", "path to a YAML policy document (defaults to policy.Default())")
	cmd.Int64Var(&nowMs, "now-ms", 0, "current time in ms since epoch, for window enforcement")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if receiptPath == "" || reason == "" {
		fmt.Fprintln(stderr, "Error: --receipt and --reason are required")
		return 2
	}

	data, err := os.ReadFile(receiptPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading receipt: %v\n", err)
		return 1
	}
	var receipt contracts.Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		fmt.Fprintf(stderr, "Error decoding receipt: %v\n", err)
		return 1
	}

	pol, err := loadPolicy(policyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading policy: %v\n", err)
		return 2
	}

	rec, err := disputes.Open(disputes.OpenInput{Receipt: receipt, Reason: reason, NowMs: nowMs, Policy: pol.Disputes})
	if err != nil {
		fmt.Fprintf(stderr, "Error opening dispute: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rec)
	return 0
}

// nowMs reads wall-clock time; the CLI is a human driver rather than a
// test harness, so — unlike every library package, which only advances
// time via an injected clock — it is free to read real time directly.
func nowMs() int64 {
	return time.Now().UnixMilli()
}
