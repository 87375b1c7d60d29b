package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/config"
	"github.com/saude/saude/internal/domain/account"
	"github.com/saude/saude/internal/domain/clinical"
	"github.com/saude/saude/internal/domain/diary"
	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/help"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/interest"
	"github.com/saude/saude/internal/domain/linking"
	"github.com/saude/saude/internal/domain/media"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/blobstore"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
	"github.com/saude/saude/internal/platform/websocket"
)

// app holds every wired service. Handlers are built from it in runServer.
type app struct {
	pool        *pgxpool.Pool
	redis       *redis.Client
	hub         *websocket.Hub
	blobs       blobstore.Store
	publisher   events.Publisher
	revocations auth.RevocationStore
	signingKey  []byte

	vocabulary  *vocabulary.Service
	observation *observation.Service
	relations   *factrel.Service
	identity    *identity.Service
	clinical    *clinical.Service
	linking     *linking.Service
	account     *account.Service
	help        *help.Service
	interest    *interest.Service
	diary       *diary.Service

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// factLinks answers person/provider link checks straight from the
// relationship graph. Clinical needs it before the linking service exists.
type factLinks struct {
	rel *factrel.Service
}

func (l factLinks) IsLinked(ctx context.Context, personID, providerID int64) (bool, error) {
	return l.rel.Linked(ctx, factrel.Person(personID), factrel.Provider(providerID), vocabulary.CodePersonProvider)
}

// resolveSigningKey returns the configured JWT key, or a random 32-byte key
// when none is set. The second return value is true when a key was generated.
func resolveSigningKey(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.EventsBackend == "sqs" || cfg.BlobBackend == "s3"
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newPublisher returns the configured outbound event publisher and its
// closer, if any.
func newPublisher(cfg *config.Config, awsCfg aws.Config, logger zerolog.Logger) (events.Publisher, func() error) {
	switch cfg.EventsBackend {
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, p.Close
	case "sqs":
		return events.NewSQSPublisher(awsCfg, cfg.SQSQueueURL), nil
	default:
		return events.NewLogPublisher(logger), nil
	}
}

func newBlobStore(cfg *config.Config, awsCfg aws.Config) blobstore.Store {
	if cfg.BlobBackend == "s3" {
		return blobstore.NewS3Store(awsCfg, cfg.S3Bucket)
	}
	return blobstore.NewMemoryStore()
}

func newLimiter(cfg *config.Config, client *redis.Client) linking.AttemptLimiter {
	if client != nil {
		return linking.NewRedisLimiter(client, "saude", cfg.LinkCodeMaxAttempts, cfg.LinkCodeAttemptWindow)
	}
	return linking.NewMemoryLimiter(cfg.LinkCodeMaxAttempts, cfg.LinkCodeAttemptWindow)
}

func newRevocations(client *redis.Client) (auth.RevocationStore, func() error) {
	if client != nil {
		return auth.NewRedisRevocationStore(client, "saude"), nil
	}
	store := auth.NewMemoryRevocationStore()
	return store, func() error { store.Close(); return nil }
}

// topicResolver maps an account to the websocket topic of its profile.
func topicResolver(lookup auth.ProfileLookup) websocket.TopicResolver {
	return func(ctx context.Context, accountID string) ([]string, error) {
		p, err := lookup(ctx, accountID)
		if err != nil {
			return nil, err
		}
		switch {
		case p == nil:
			return nil, nil
		case p.Role == auth.RolePerson && p.PersonID > 0:
			return []string{websocket.PersonTopic(p.PersonID)}, nil
		case p.Role == auth.RoleProvider && p.ProviderID > 0:
			return []string{websocket.ProviderTopic(p.ProviderID)}, nil
		}
		return nil, nil
	}
}

// originChecker accepts browser origins listed in CORS_ORIGINS. A "*" entry
// accepts any origin.
func originChecker(origins []string) func(string) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(origin string) bool {
		return allowed["*"] || allowed[strings.TrimRight(origin, "/")]
	}
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{pool: pool}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	rdb, err := newRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.redis = rdb
		a.closers = append(a.closers, rdb.Close)
		logger.Info().Msg("connected to redis")
	}

	var awsCfg aws.Config
	if needsAWS(cfg) {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
	}

	backend, closeBackend := newPublisher(cfg, awsCfg, logger)
	if closeBackend != nil {
		a.closers = append(a.closers, closeBackend)
	}
	a.hub = websocket.NewHub(logger)
	a.publisher = events.Fanout{a.hub, backend}
	a.blobs = newBlobStore(cfg, awsCfg)

	var closeRevocations func() error
	a.revocations, closeRevocations = newRevocations(rdb)
	if closeRevocations != nil {
		a.closers = append(a.closers, closeRevocations)
	}

	key, generated, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("JWT_SIGNING_KEY not set, using a random key; tokens will not survive a restart")
	}
	a.signingKey = key
	issuer := auth.NewIssuer(key, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	vocabRepo := vocabulary.NewRepoPG(pool)
	registry, err := vocabulary.Load(ctx, vocabRepo, vocabulary.RequiredCodes)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary (run \"saude-server seed\"?): %w", err)
	}
	manifest, err := vocabulary.DefaultManifest()
	if err != nil {
		return nil, err
	}
	a.vocabulary = vocabulary.NewService(vocabRepo, manifest.InterestAreas)

	tx := db.NewTxRunner(pool)
	a.observation = observation.NewService(observation.NewRepoPG(pool), tx, registry, logger)
	relRepo := factrel.NewRepoPG(pool)
	a.relations = factrel.NewService(relRepo, relRepo, registry)

	a.clinical = clinical.NewService(
		clinical.NewRecurrenceRuleRepoPG(pool),
		clinical.NewDrugExposureRepoPG(pool),
		clinical.NewMeasurementRepoPG(pool),
		clinical.NewVisitRepoPG(pool),
		tx, registry, factLinks{rel: a.relations},
	)
	a.identity = identity.NewService(
		identity.NewPersonRepoPG(pool),
		identity.NewProviderRepoPG(pool),
		identity.NewLocationRepoPG(pool),
		identity.NewAccountRoleRepoPG(pool),
		tx, a.clinical, a.observation, registry, logger,
	)
	a.linking = linking.NewService(linking.Deps{
		Codes:     linking.NewCodeRepoPG(pool),
		Links:     a.relations,
		Directory: a.identity,
		Visits:    a.clinical,
		Help:      a.observation,
		Concepts:  registry,
		Tx:        tx,
		Limiter:   newLimiter(cfg, rdb),
		Events:    a.publisher,
		Logger:    logger,
	})
	a.account = account.NewService(
		account.NewRepoPG(pool), a.identity, a.relations, tx, issuer, a.revocations,
		auth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL), a.blobs,
		account.Options{
			Development: cfg.ResolvedAuthMode() == config.AuthDevelopment,
			RefreshTTL:  cfg.RefreshTokenTTL,
			MediaURL:    media.Prefix,
		},
		logger,
	)
	a.help = help.NewService(a.observation, a.linking, a.identity, tx, a.publisher, logger)
	a.interest = interest.NewService(a.observation, a.relations, a.linking, a.identity, tx, a.publisher, logger)
	a.diary = diary.NewService(a.observation, a.relations, a.linking, tx, logger)

	ok = true
	return a, nil
}
