// Package main provides the osmosis-store demo CLI: a thin, hand-rolled
// command dispatcher (no generated help text, no flag library) used to
// exercise a Store from a terminal — set/delete/query a path, list the
// save-point ladder, print the convergence state summary. Not a product
// CLI; SPEC_FULL §14 scopes it to this.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/config"
	"github.com/mattsp1290/osmosis-store/pkg/logging"
	"github.com/mattsp1290/osmosis-store/pkg/osmstore"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
	"github.com/mattsp1290/osmosis-store/pkg/savestate/filestore"
)

// Exit codes, mirrored from the teacher's cmd/ag-ui-cli convention.
const (
	exitSuccess = 0
	exitError   = 1
	exitUsage   = 64
)

type command struct {
	name        string
	usage       string
	description string
	run         func(ctx context.Context, store *osmstore.Store, args []string) error
}

func main() {
	base := config.Default()
	base.DataDir = ""
	cfg, err := config.FromEnv(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "osmosis-cli: config:", err)
		os.Exit(exitUsage)
	}
	log := logging.New("info")

	state, closeState, err := openState(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "osmosis-cli:", err)
		os.Exit(exitError)
	}
	defer closeState()

	store := osmstore.New(state, osmstore.WithLogger(log))

	commands := buildCommands()
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		showHelp(commands)
		os.Exit(exitSuccess)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "osmosis-cli: unknown command %q\n", args[0])
		showHelp(commands)
		os.Exit(exitUsage)
	}

	if err := cmd.run(context.Background(), store, args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "osmosis-cli:", err)
		os.Exit(exitError)
	}
}

// openState picks the in-memory backend when DataDir is empty, otherwise
// warm-starts (or creates) a flat-file store under it — the choice
// spec §6 leaves to the embedding application.
func openState(cfg config.StoreConfig, log logging.Logger) (savestate.SaveState, func(), error) {
	if cfg.DataDir == "" {
		return savestate.New(log), func() {}, nil
	}
	fs, err := filestore.Open(cfg.DataDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening flat-file store at %s: %w", cfg.DataDir, err)
	}
	return fs, func() { _ = fs.Close() }, nil
}

func buildCommands() map[string]*command {
	cmds := []*command{
		{
			name:        "set",
			usage:       "set <path> <json-value>",
			description: "dispatch a Set action against path with the given JSON-encoded value",
			run:         runSet,
		},
		{
			name:        "delete",
			usage:       "delete <path>",
			description: "dispatch a Delete action against path",
			run:         runDelete,
		},
		{
			name:        "query",
			usage:       "query <path>",
			description: "evaluate path against the live tree and print the matches as JSON",
			run:         runQuery,
		},
		{
			name:        "savepoints",
			usage:       "savepoints",
			description: "list the save-point ladder (id, width, hash)",
			run:         runSavePoints,
		},
		{
			name:        "summary",
			usage:       "summary",
			description: "print the current state hash and per-author latest indexes",
			run:         runSummary,
		},
	}
	out := make(map[string]*command, len(cmds))
	for _, c := range cmds {
		out[c.name] = c
	}
	return out
}

func runSet(_ context.Context, store *osmstore.Store, args []string) error {
	if len(args) != 2 {
		return usageError("set <path> <json-value>")
	}
	var value any
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	result, err := store.Dispatch(osmstore.Request{Kind: action.Set, Target: args[0], Value: value})
	if err != nil {
		return err
	}
	return printDispatchResult(result)
}

func runDelete(_ context.Context, store *osmstore.Store, args []string) error {
	if len(args) != 1 {
		return usageError("delete <path>")
	}
	result, err := store.Dispatch(osmstore.Request{Kind: action.Delete, Target: args[0]})
	if err != nil {
		return err
	}
	return printDispatchResult(result)
}

func runQuery(_ context.Context, store *osmstore.Store, args []string) error {
	if len(args) != 1 {
		return usageError("query <path>")
	}
	values, err := store.QueryOnce(args[0], nil)
	if err != nil {
		return err
	}
	enc, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func runSavePoints(_ context.Context, store *osmstore.Store, _ []string) error {
	for _, sp := range store.SavePoints() {
		fmt.Printf("%s  width=%-4d hash=%x\n", sp.ID.String(), sp.Width, sp.Hash)
	}
	return nil
}

func runSummary(_ context.Context, store *osmstore.Store, _ []string) error {
	summary := store.StateSummary()
	fmt.Printf("hash=%x\n", summary.Hash)
	for author, idx := range summary.LatestIndexes {
		fmt.Printf("  %s -> %d\n", author, idx)
	}
	return nil
}

func printDispatchResult(result osmstore.DispatchResult) error {
	ids := make([]string, len(result.Ops))
	for i, id := range result.Ops {
		ids[i] = id.String()
	}
	fmt.Println("ops:", strings.Join(ids, ", "))
	fmt.Println("changes:", len(result.Changes))
	for _, f := range result.Failures {
		fmt.Printf("failure: %s: %s\n", f.Kind.String(), f.Reason)
	}
	return nil
}

func usageError(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}

func showHelp(commands map[string]*command) {
	fmt.Println("osmosis-cli: exercise a Store from a terminal")
	fmt.Println()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		c := commands[name]
		fmt.Printf("  %-28s %s\n", c.usage, c.description)
	}
	fmt.Println()
	fmt.Println("OSMOSIS_DATA_DIR selects the flat-file backend; unset uses in-memory.")
}
