package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/crmgate/pkg/fixtures"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
	"github.com/platinummonkey/crmgate/pkg/users"
)

func newSeedCommand() *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Load a fixture file into an empty database (development only)",
		Flags:       flag.NewFlagSet("seed", flag.ContinueOnError),
		Run:         runSeed,
	}

	cmd.Flags.String("database-url", "", "PostgreSQL URL (default $CRMGATE_DATABASE_URL)")
	cmd.Flags.String("file", "", "Fixture YAML (default the built-in Speccon data set)")
	cmd.Flags.Bool("migrate", true, "Apply schema migrations first")
	cmd.Flags.Int("bcrypt-cost", bcrypt.DefaultCost, "Password hash cost")

	return cmd
}

func runSeed(ctx context.Context, env *Env, args []string) error {
	cmd := newSeedCommand()
	if err := parseFlags(cmd.Flags, env, args); err != nil {
		return err
	}

	dbURL := firstNonEmpty(cmd.Flags.Lookup("database-url").Value.String(), env.Getenv("CRMGATE_DATABASE_URL"))
	if dbURL == "" {
		return usagef("--database-url or CRMGATE_DATABASE_URL is required")
	}
	cost, _ := strconv.Atoi(cmd.Flags.Lookup("bcrypt-cost").Value.String())

	ds := fixtures.Speccon()
	if file := cmd.Flags.Lookup("file").Value.String(); file != "" {
		loaded, err := fixtures.Load(file)
		if err != nil {
			return usagef("%v", err)
		}
		ds = loaded
	}

	logger := observability.NewLogger(observability.WarnLevel, env.Err)
	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:   dbURL,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer cm.Close()

	if cmd.Flags.Lookup("migrate").Value.String() == "true" {
		applied, err := postgres.Migrate(ctx, cm.Primary())
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Applied %d migration(s)\n", applied)
	}

	hasher := users.NewHasher(cost)
	if err := fixtures.Seed(ctx, cm.Primary(), ds, hasher.Hash); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Seeded %d tenant(s), %d user(s), %d client(s)\n", len(ds.Tenants), len(ds.Users), len(ds.Clients))
	return nil
}
