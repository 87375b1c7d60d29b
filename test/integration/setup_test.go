//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/account"
	"github.com/saude/saude/internal/domain/clinical"
	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/interest"
	"github.com/saude/saude/internal/domain/linking"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/blobstore"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
	"github.com/saude/saude/migrations"
)

// connStr points at the shared test database, started once in TestMain.
var connStr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	url := os.Getenv("SAUDE_TEST_DATABASE_URL")
	cleanup := func() {}
	if url == "" {
		var err error
		url, cleanup, err = startWithTestcontainers(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
			os.Exit(1)
		}
	}

	connStr = url
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// env is a fully wired service graph over a private schema.
type env struct {
	pool     *pgxpool.Pool
	registry *vocabulary.Registry
	accounts *account.Service
	identity *identity.Service
	docs     *observation.Service
	rel      *factrel.Service
	linking  *linking.Service
	interest *interest.Service
}

type graphLinks struct{ rel *factrel.Service }

func (l graphLinks) IsLinked(ctx context.Context, personID, providerID int64) (bool, error) {
	return l.rel.Linked(ctx, factrel.Person(personID), factrel.Provider(providerID), vocabulary.CodePersonProvider)
}

// uniqueSchema generates a schema name for test isolation.
func uniqueSchema(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("it_%s_%s", prefix, short)
}

// newEnv migrates and seeds a fresh schema and wires the services over it.
// The schema is dropped when the test ends.
func newEnv(t *testing.T, prefix string) *env {
	t.Helper()
	ctx := context.Background()
	schema := uniqueSchema(prefix)

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: connStr, MaxConns: 20, MinConns: 1, Schema: schema})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
		pool.Close()
	})

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	manifest, err := vocabulary.DefaultManifest()
	if err != nil {
		t.Fatal(err)
	}
	vocabRepo := vocabulary.NewRepoPG(pool)
	if _, err := vocabulary.Seed(ctx, vocabRepo, manifest); err != nil {
		t.Fatalf("seed: %v", err)
	}
	registry, err := vocabulary.Load(ctx, vocabRepo, vocabulary.RequiredCodes)
	if err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}

	logger := zerolog.Nop()
	tx := db.NewTxRunner(pool)
	docs := observation.NewService(observation.NewRepoPG(pool), tx, registry, logger)
	relRepo := factrel.NewRepoPG(pool)
	rel := factrel.NewService(relRepo, relRepo, registry)
	clin := clinical.NewService(
		clinical.NewRecurrenceRuleRepoPG(pool),
		clinical.NewDrugExposureRepoPG(pool),
		clinical.NewMeasurementRepoPG(pool),
		clinical.NewVisitRepoPG(pool),
		tx, registry, graphLinks{rel: rel},
	)
	ident := identity.NewService(
		identity.NewPersonRepoPG(pool),
		identity.NewProviderRepoPG(pool),
		identity.NewLocationRepoPG(pool),
		identity.NewAccountRoleRepoPG(pool),
		tx, clin, docs, registry, logger,
	)
	link := linking.NewService(linking.Deps{
		Codes:     linking.NewCodeRepoPG(pool),
		Links:     rel,
		Directory: ident,
		Visits:    clin,
		Help:      docs,
		Concepts:  registry,
		Tx:        tx,
		Limiter:   linking.NewMemoryLimiter(1000, time.Minute),
		Logger:    logger,
	})
	accounts := account.NewService(
		account.NewRepoPG(pool), ident, rel, tx,
		auth.NewIssuer([]byte("integration-signing-key-0123456789abcdef"), time.Hour, 24*time.Hour),
		auth.NewMemoryRevocationStore(), auth.NewGoogleVerifier("", ""), blobstore.NewMemoryStore(),
		account.Options{Development: true, RefreshTTL: 24 * time.Hour, MediaURL: "/api/v1/media/"},
		logger,
	)

	return &env{
		pool:     pool,
		registry: registry,
		accounts: accounts,
		identity: ident,
		docs:     docs,
		rel:      rel,
		linking:  link,
		interest: interest.NewService(docs, rel, link, ident, tx, events.Nop, logger),
	}
}

func (e *env) login(t *testing.T, email string) uuid.UUID {
	t.Helper()
	resp, err := e.accounts.DevLogin(context.Background(), &account.DevLoginRequest{Email: email})
	if err != nil {
		t.Fatalf("dev login %s: %v", email, err)
	}
	return resp.UserID
}

func (e *env) person(t *testing.T, name string) int64 {
	t.Helper()
	accountID := e.login(t, strings.ToLower(name)+"@example.com")
	p, err := e.identity.OnboardPerson(context.Background(), accountID, &identity.PersonOnboarding{SocialName: name})
	if err != nil {
		t.Fatalf("onboard person %s: %v", name, err)
	}
	return p.ID
}

func (e *env) provider(t *testing.T, name string) int64 {
	t.Helper()
	accountID := e.login(t, strings.ToLower(strings.ReplaceAll(name, " ", "."))+"@clinic.example")
	p, err := e.identity.OnboardProvider(context.Background(), accountID, &identity.ProviderOnboarding{SocialName: name})
	if err != nil {
		t.Fatalf("onboard provider %s: %v", name, err)
	}
	return p.ID
}

// ptrBool returns a pointer to the given bool.
func ptrBool(b bool) *bool { return &b }
