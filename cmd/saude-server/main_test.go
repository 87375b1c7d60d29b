package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saude/saude/internal/config"
	"github.com/saude/saude/internal/domain/linking"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/blobstore"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
)

// ---------------------------------------------------------------------------
// websocket topics
// ---------------------------------------------------------------------------

func TestTopicResolver(t *testing.T) {
	profiles := map[string]*auth.Profile{
		"person":   {Role: auth.RolePerson, PersonID: 7},
		"provider": {Role: auth.RoleProvider, ProviderID: 9},
		"fresh":    {},
	}
	resolve := topicResolver(func(_ context.Context, id string) (*auth.Profile, error) {
		if id == "broken" {
			return nil, errors.New("db down")
		}
		return profiles[id], nil
	})

	tests := []struct {
		account string
		want    string
	}{
		{"person", "person:7"},
		{"provider", "provider:9"},
		{"fresh", ""},
		{"unknown", ""},
	}
	for _, tt := range tests {
		topics, err := resolve(context.Background(), tt.account)
		if err != nil {
			t.Fatalf("%s: %v", tt.account, err)
		}
		if tt.want == "" {
			if len(topics) != 0 {
				t.Errorf("%s: expected no topics, got %v", tt.account, topics)
			}
			continue
		}
		if len(topics) != 1 || topics[0] != tt.want {
			t.Errorf("%s: got %v, want [%s]", tt.account, topics, tt.want)
		}
	}

	if _, err := resolve(context.Background(), "broken"); err == nil {
		t.Error("expected lookup error to propagate")
	}
}

func TestOriginChecker(t *testing.T) {
	ok := originChecker([]string{"http://localhost:3000/", "https://app.saude.example"})
	if !ok("http://localhost:3000") || !ok("https://app.saude.example/") {
		t.Error("listed origins must be accepted")
	}
	if ok("https://evil.example") {
		t.Error("unlisted origin accepted")
	}
	if !originChecker([]string{"*"})("https://anything.example") {
		t.Error("wildcard must accept any origin")
	}
}

// ---------------------------------------------------------------------------
// signing key
// ---------------------------------------------------------------------------

func TestResolveSigningKey_Configured(t *testing.T) {
	key, generated, err := resolveSigningKey("a-very-long-signing-key-of-32-bytes!")
	if err != nil {
		t.Fatal(err)
	}
	if generated || string(key) != "a-very-long-signing-key-of-32-bytes!" {
		t.Errorf("unexpected key %q generated=%v", key, generated)
	}
}

func TestResolveSigningKey_Random(t *testing.T) {
	a, generated, err := resolveSigningKey("")
	if err != nil {
		t.Fatal(err)
	}
	if !generated || len(a) != 32 {
		t.Fatalf("expected a generated 32-byte key, got %d bytes generated=%v", len(a), generated)
	}
	b, _, _ := resolveSigningKey("")
	if string(a) == string(b) {
		t.Error("two generated keys must differ")
	}
}

// ---------------------------------------------------------------------------
// backend selection
// ---------------------------------------------------------------------------

func TestBackendsWithoutRedis(t *testing.T) {
	cfg := &config.Config{
		EventsBackend:         "log",
		BlobBackend:           "memory",
		LinkCodeMaxAttempts:   5,
		LinkCodeAttemptWindow: time.Minute,
	}
	if needsAWS(cfg) {
		t.Error("log and memory backends do not need aws")
	}
	if _, ok := newLimiter(cfg, nil).(*linking.MemoryLimiter); !ok {
		t.Error("expected the in-memory limiter without redis")
	}
	store, closeFn := newRevocations(nil)
	if _, ok := store.(*auth.MemoryRevocationStore); !ok || closeFn == nil {
		t.Error("expected the in-memory revocation store with a closer")
	}
	closeFn()
	if _, ok := newBlobStore(cfg, aws.Config{}).(*blobstore.MemoryStore); !ok {
		t.Error("expected the in-memory blob store")
	}
	pub, closePub := newPublisher(cfg, aws.Config{}, zerolog.Nop())
	if _, ok := pub.(*events.LogPublisher); !ok || closePub != nil {
		t.Error("expected the log publisher without a closer")
	}
}

func TestNeedsAWS(t *testing.T) {
	if !needsAWS(&config.Config{EventsBackend: "sqs", BlobBackend: "memory"}) {
		t.Error("sqs needs aws")
	}
	if !needsAWS(&config.Config{EventsBackend: "kafka", BlobBackend: "s3"}) {
		t.Error("s3 needs aws")
	}
}

func TestSchemaFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("schema", "", "")

	if got := schemaFlag(cmd, &config.Config{}); got != "public" {
		t.Errorf("expected public, got %q", got)
	}
	if got := schemaFlag(cmd, &config.Config{DBSchema: "saude"}); got != "saude" {
		t.Errorf("expected DB_SCHEMA, got %q", got)
	}
	_ = cmd.Flags().Set("schema", "tenant_a")
	if got := schemaFlag(cmd, &config.Config{DBSchema: "saude"}); got != "tenant_a" {
		t.Errorf("expected the flag to win, got %q", got)
	}
}

func TestSchemaFlag_CommandWithoutFlag(t *testing.T) {
	if got := schemaFlag(&cobra.Command{}, &config.Config{DBSchema: "saude"}); got != "saude" {
		t.Errorf("got %q", got)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, "public", []db.MigrationStatus{
		{Version: 1, Name: "001_vocabulary.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_person.sql", Applied: true, Modified: true, AppliedAt: &at},
		{Version: 3, Name: "003_observation.sql"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	for i, want := range []string{"applied", "modified", "pending"} {
		if !strings.Contains(lines[i+2], want) {
			t.Errorf("line %q should say %s", lines[i+2], want)
		}
	}
	if !strings.Contains(lines[2], "2026-05-04T10:00:00Z") {
		t.Errorf("missing applied time: %q", lines[2])
	}
}
