package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/agentrelay/agentrelay/internal/adapter/postgres"
	"github.com/agentrelay/agentrelay/internal/config"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "mint-key":
		return runAdminMintKey(args[1:])
	case "migrate-down":
		return runAdminMigrateDown(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentrelay admin <command> [options]

Commands:
  mint-key      Generate an API key entry for the auth.keys config section
  migrate-down  Roll back the last N database migrations
  help          Show this help message

Examples:
  agentrelay admin mint-key --caller my-client
  agentrelay admin mint-key --caller my-client --secret s3cret
  agentrelay admin migrate-down --steps 1
`)
}

// runAdminMintKey hashes a secret and prints the config stanza plus the
// bearer token the client should present. The secret itself is never
// stored; only its bcrypt hash goes into the config.
func runAdminMintKey(args []string) error {
	fs := flag.NewFlagSet("mint-key", flag.ContinueOnError)
	caller := fs.String("caller", "", "caller identity this key maps to (required)")
	secret := fs.String("secret", "", "key secret (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *caller == "" {
		return fmt.Errorf("--caller is required")
	}

	sec := *secret
	if sec == "" {
		var err error
		sec, err = promptSecret("Secret: ")
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		confirm, err := promptSecret("Confirm secret: ")
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		if sec != confirm {
			return fmt.Errorf("secrets do not match")
		}
	}
	if len(sec) < 16 {
		return fmt.Errorf("secret must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(sec), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	keyID := uuid.NewString()
	fmt.Printf(`Add to agentrelay.yaml:

auth:
  keys:
    - id: %s
      hash: %s
      caller: %s

Client bearer token: %s.%s
`, keyID, string(hash), *caller, keyID, sec)
	return nil
}

// runAdminMigrateDown rolls back database migrations. The DSN comes from
// the same config sources as the server (file and environment).
func runAdminMigrateDown(args []string) error {
	fs := flag.NewFlagSet("migrate-down", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("no postgres DSN configured")
	}

	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	fmt.Printf("rolled back %d migration(s)\n", *steps)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
