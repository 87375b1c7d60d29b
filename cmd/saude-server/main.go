package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saude/saude/internal/config"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/migrations"
)

func main() {
	root := &cobra.Command{
		Use:           "saude-server",
		Short:         "SAÚDE API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the API server",
			RunE:  func(*cobra.Command, []string) error { return runServer() },
		},
		migrateCmd(),
		seedCmd(),
		adminCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config, schema string) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   schema,
	})
}

// dbTask is the body of a command that needs configuration and a pool.
type dbTask func(cmd *cobra.Command, cfg *config.Config, pool *pgxpool.Pool, schema string) error

// withDB loads configuration, opens a pool on the command's schema and runs
// task with it.
func withDB(task dbTask) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		schema := schemaFlag(cmd, cfg)
		pool, err := openPool(cmd.Context(), cfg, schema)
		if err != nil {
			return err
		}
		defer pool.Close()
		return task(cmd, cfg, pool, schema)
	}
}

// schemaFlag reads --schema, falling back to DB_SCHEMA.
func schemaFlag(cmd *cobra.Command, cfg *config.Config) string {
	if f := cmd.Flags().Lookup("schema"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	if cfg.DBSchema != "" {
		return cfg.DBSchema
	}
	return "public"
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withDB(func(cmd *cobra.Command, _ *config.Config, pool *pgxpool.Pool, schema string) error {
			target, _ := cmd.Flags().GetInt("to")
			n, err := db.NewMigrator(pool, migrations.FS).UpTo(cmd.Context(), schema, target)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", schema, err)
			}
			fmt.Printf("%s: %d migration(s) applied\n", schema, n)
			return nil
		}),
	}
	up.Flags().Int("to", 0, "Stop after this version (0 applies all)")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they ran",
		RunE: withDB(func(cmd *cobra.Command, _ *config.Config, pool *pgxpool.Pool, schema string) error {
			statuses, err := db.NewMigrator(pool, migrations.FS).Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration status for %s: %w", schema, err)
			}
			printStatus(os.Stdout, schema, statuses)
			return nil
		}),
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Not supported: write a forward migration instead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: rollback is not supported; restore a backup or add a forward migration")
			return nil
		},
	}
	cmd.AddCommand(down)

	for _, c := range []*cobra.Command{up, status} {
		c.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
		cmd.AddCommand(c)
	}
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the SAÚDE vocabulary and concepts",
		RunE: withDB(func(cmd *cobra.Command, _ *config.Config, pool *pgxpool.Pool, _ string) error {
			manifest, err := vocabulary.DefaultManifest()
			if err != nil {
				return err
			}
			res, err := vocabulary.Seed(cmd.Context(), vocabulary.NewRepoPG(pool), manifest)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Printf("vocabularies=%d domains=%d classes=%d concepts=%d synonyms=%d\n",
				res.Vocabularies, res.Domains, res.ConceptClasses, res.Concepts, res.Synonyms)
			return nil
		}),
	}
	cmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	return cmd
}

func adminCmd() *cobra.Command {
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator or reset its password",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{"email", "password"} {
				if v, _ := cmd.Flags().GetString(name); v == "" {
					return fmt.Errorf("--%s is required", name)
				}
			}
			return nil
		},
		RunE: withDB(func(cmd *cobra.Command, cfg *config.Config, pool *pgxpool.Pool, _ string) error {
			ctx := cmd.Context()
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			a, err := newApp(ctx, cfg, pool, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			acc, err := a.account.EnsureAdmin(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("administrator %s ready (account %s)\n", acc.Email, acc.ID)
			return nil
		}),
	}
	create.Flags().String("email", "", "Administrator email")
	create.Flags().String("password", "", "Administrator password, at least 8 characters")

	cmd := &cobra.Command{Use: "admin", Short: "Manage administrator accounts"}
	cmd.AddCommand(create)
	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "schema %s\n", schema)
	fmt.Fprintf(w, "%-8s %-40s %-9s %s\n", "VERSION", "NAME", "STATE", "APPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.Modified {
				state = "modified"
			}
			if s.AppliedAt != nil {
				at = s.AppliedAt.UTC().Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-8d %-40s %-9s %s\n", s.Version, s.Name, state, at)
	}
}
