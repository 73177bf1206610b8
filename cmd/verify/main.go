// Command verify re-walks the hash chain of a vault event journal and
// reports whether every entry still matches its recorded hash.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/journal"
)

func main() {
	journalPath := flag.String("journal", "", "path to the journal database")
	configPath := flag.String("config", "", "config file to read the journal path from")
	flag.Parse()

	path := *journalPath
	if path == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		fatal(errors.New("either -journal or -config is required"))
	}

	jnl, err := journal.Open(path, zap.NewNop())
	if err != nil {
		fatal(err)
	}
	defer jnl.Close()

	result, err := jnl.Verify(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("journal ok: %d entries, head %s\n", result.Entries, hex.EncodeToString(result.Head))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
