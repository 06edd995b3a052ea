package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"relaychat/domain"
	"relaychat/internal"
)

type config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	DebugPort      int    `envconfig:"DEBUG_PORT" default:"9090"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening while the server holds the lock
	opts := badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Start the inspector alone; the server's counters are not
	// reachable from here so the stats block only reports the mode.
	viewerStats := func() map[string]any {
		return map[string]any{
			"Status": "Viewer Mode (Read-Only)",
			"Time":   time.Now().Format(time.RFC822),
		}
	}

	fmt.Printf("Viewer started at http://localhost:%d/inspect\n", cfg.DebugPort)
	internal.StartDebugServer(db, cfg.DebugPort, "/inspect", MessageMapper, viewerStats)
	select {}
}

// MessageMapper decodes stored chat messages so the inspector shows who
// said what instead of raw byte sizes.
func MessageMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	var message domain.Message
	if err := json.Unmarshal(val, &message); err != nil {
		return row
	}

	row.Type = string(message.Type)
	row.Detail = fmt.Sprintf("%s: %s", message.Author, message.Content)
	if message.Target != "" {
		row.Detail = fmt.Sprintf("%s -> %s: %s", message.Author, message.Target, message.Content)
	}
	return row
}
