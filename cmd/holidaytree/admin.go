package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/app"
	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/config"
	"github.com/aliuyar1234/holidaytree/internal/db"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/joho/godotenv"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "hash-password":
		return runHashPassword(args[1:])
	case "create-invite":
		return runCreateInvite(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  holidaytree admin hash-password [--password <pw>]")
	fmt.Fprintln(os.Stderr, "  holidaytree admin create-invite [--max-uses N] [--ttl-hours H]")
	fmt.Fprintln(os.Stderr, "  holidaytree admin migrate [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - hash-password prints a bcrypt hash for HT_ADMIN_PASSWORD_HASH. If --password is")
	fmt.Fprintln(os.Stderr, "    omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - create-invite reads the same HT_* configuration as the server.")
	fmt.Fprintln(os.Stderr, "  - migrate applies Postgres migrations; --db-dsn defaults to HT_DB_DSN.")
}

func runHashPassword(args []string) int {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var password string
	fs.StringVar(&password, "password", "", "Admin password (if empty, generates one)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(18)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		return 2
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	if generated {
		fmt.Fprintf(os.Stdout, "Password: %s\n", password)
	}
	fmt.Fprintf(os.Stdout, "HT_ADMIN_PASSWORD_HASH=%s\n", hash)
	return 0
}

func runCreateInvite(args []string) int {
	fs := flag.NewFlagSet("create-invite", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var maxUses int
	var ttlHours int
	fs.IntVar(&maxUses, "max-uses", 0, "Photos the invite allows (defaults to HT_INVITE_MAX_USES)")
	fs.IntVar(&ttlHours, "ttl-hours", -1, "Lifetime in hours; 0 creates a single-use invite without expiry (defaults to HT_INVITE_TTL_DAYS)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer st.Close()

	svc := invites.NewService(st, nil, audit.NewWriter(st), invites.Options{
		MaxUses: cfg.InviteMaxUses,
		TTL:     time.Duration(cfg.InviteTTLDays) * 24 * time.Hour,
		BaseURL: cfg.BaseURL,
	})

	opts := invites.CreateOptions{MaxUses: maxUses}
	if ttlHours >= 0 {
		ttl := time.Duration(ttlHours) * time.Hour
		opts.TTL = &ttl
	}

	inv, err := svc.Create(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create invite: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Code: %s\n", inv.Code)
	fmt.Fprintf(os.Stdout, "Link: %s\n", svc.Link(inv.Code))
	if inv.ExpiresAt != nil {
		fmt.Fprintf(os.Stdout, "Uses: %d, expires %s\n", inv.RemainingUses(), inv.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(os.Stdout, "Uses: 1, no expiry")
	}
	return 0
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var dbDSN string
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to HT_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	_ = godotenv.Load()
	if dbDSN == "" {
		dbDSN = os.Getenv("HT_DB_DSN")
	}
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set HT_DB_DSN)")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Migrations applied.")
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
