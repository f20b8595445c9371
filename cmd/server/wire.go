package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"vcissuer/internal/accreditation"
	accmetrics "vcissuer/internal/accreditation/metrics"
	accstore "vcissuer/internal/accreditation/store"
	"vcissuer/internal/catalog"
	catstore "vcissuer/internal/catalog/store"
	"vcissuer/internal/credentials"
	credhandler "vcissuer/internal/credentials/handler"
	credmetrics "vcissuer/internal/credentials/metrics"
	credstore "vcissuer/internal/credentials/store"
	"vcissuer/internal/entitydata"
	"vcissuer/internal/events"
	eventmetrics "vcissuer/internal/events/metrics"
	eventstore "vcissuer/internal/events/store"
	"vcissuer/internal/issuerkey"
	"vcissuer/internal/ledger"
	ledgermetrics "vcissuer/internal/ledger/metrics"
	"vcissuer/internal/nonce"
	noncestore "vcissuer/internal/nonce/store"
	"vcissuer/internal/onboarding"
	onbmetrics "vcissuer/internal/onboarding/metrics"
	onbstore "vcissuer/internal/onboarding/store"
	"vcissuer/internal/openid"
	openidhandler "vcissuer/internal/openid/handler"
	openidmetrics "vcissuer/internal/openid/metrics"
	"vcissuer/internal/platform/config"
	"vcissuer/internal/platform/httpserver"
	"vcissuer/internal/platform/kafka"
	"vcissuer/internal/platform/postgres"
	redisclient "vcissuer/internal/platform/redis"
	"vcissuer/internal/signer"
	"vcissuer/internal/statuslist"
	slhandler "vcissuer/internal/statuslist/handler"
	slmetrics "vcissuer/internal/statuslist/metrics"
	slstore "vcissuer/internal/statuslist/store"
	txcontext "vcissuer/pkg/platform/tx"
)

// gateway holds every assembled component plus the resources that need
// closing on exit.
type gateway struct {
	cfg    config.Server
	logger *slog.Logger

	db       *sql.DB
	redis    *redisclient.Client
	producer *kafka.Producer
	memNonce *noncestore.InMemoryStore

	catalog       *catalog.Catalog
	catalogSource catalogSource
	ledger        *ledger.Client
	nonces        *nonce.Service
	lists         *statuslist.Service
	credentials   *credentials.Service
	accreditation *accreditation.Service
	pool          *onboarding.Pool
	onboarding    *onboarding.Service
	failures      onboarding.FailureStore
	openid        *openid.Service
	relay         *events.Relay
}

type catalogSource interface {
	catalog.Source
	Apply(ctx context.Context, seed *catalog.Seed) error
}

// catalogReloader breaks the construction cycle between the catalog, which
// reads grants from accreditation, and accreditation, which reloads the
// catalog after a grant lands.
type catalogReloader struct {
	catalog *catalog.Catalog
}

func (r *catalogReloader) Reload(ctx context.Context) error {
	if r.catalog == nil {
		return errors.New("catalog not initialised")
	}
	return r.catalog.Reload(ctx)
}

type stores struct {
	catalog       catalogSource
	lists         statuslist.Store
	credentials   credentials.Store
	accreditation accreditation.Store
	onboarding    onboarding.FailureStore
	events        events.Store
	tx            txcontext.Runner
}

func openStores(ctx context.Context, g *gateway) (*stores, error) {
	if !g.cfg.UsesPostgres() {
		g.logger.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			catalog:       catstore.NewInMemory(),
			lists:         slstore.NewInMemory(),
			credentials:   credstore.NewInMemory(),
			accreditation: accstore.NewInMemory(),
			onboarding:    onbstore.NewInMemory(),
			events:        eventstore.NewInMemory(),
			tx:            txcontext.NewLockRunner(),
		}, nil
	}
	db, err := postgres.Open(ctx, g.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	g.db = db
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &stores{
		catalog:       catstore.NewPostgres(db),
		lists:         slstore.NewPostgres(db),
		credentials:   credstore.NewPostgres(db),
		accreditation: accstore.NewPostgres(db),
		onboarding:    onbstore.NewPostgres(db),
		events:        eventstore.NewPostgres(db),
		tx:            txcontext.NewSQLRunner(db),
	}, nil
}

func openNonceStore(ctx context.Context, g *gateway) (nonce.Store, error) {
	client, err := redisclient.New(ctx, g.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		g.logger.Warn("REDIS_URL not set, using in-memory nonce store")
		g.memNonce = noncestore.NewInMemory()
		return g.memNonce, nil
	}
	g.redis = client
	return noncestore.NewRedis(client.Client), nil
}

func openProducer(ctx context.Context, g *gateway) error {
	if len(g.cfg.Kafka.Brokers) == 0 {
		g.logger.Warn("KAFKA_BROKERS not set, outbox events are logged only")
		return nil
	}
	producer, err := kafka.NewProducer(g.cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	g.producer = producer
	k := g.cfg.Kafka
	if err := producer.EnsureTopic(ctx, k.Topic, k.Partitions, k.Replication); err != nil {
		return err
	}
	return nil
}

func issuerKeys(cfg config.IssuerConfig, logger *slog.Logger) (*issuerkey.Keys, error) {
	if cfg.PrivateKeyJWK != "" {
		return issuerkey.Parse([]byte(cfg.PrivateKeyJWK))
	}
	logger.Warn("ISSUER_PRIVATE_KEY_JWK not set, generating an ephemeral issuer key")
	return issuerkey.Generate()
}

// assemble builds every service. Nothing is started.
func assemble(ctx context.Context, cfg config.Server, logger *slog.Logger) (*gateway, error) {
	g := &gateway{cfg: cfg, logger: logger}

	st, err := openStores(ctx, g)
	if err != nil {
		return g, fmt.Errorf("open stores: %w", err)
	}
	nonces, err := openNonceStore(ctx, g)
	if err != nil {
		return g, fmt.Errorf("open nonce store: %w", err)
	}
	if err := openProducer(ctx, g); err != nil {
		return g, fmt.Errorf("open kafka producer: %w", err)
	}
	keys, err := issuerKeys(cfg.Issuer, logger)
	if err != nil {
		return g, err
	}

	eventMetrics := eventmetrics.New()
	publisher := events.NewPublisher(st.events, events.WithLogger(logger), events.WithMetrics(eventMetrics))
	relayOpts := []events.RelayOption{events.WithRelayLogger(logger), events.WithRelayMetrics(eventMetrics)}
	if g.producer != nil {
		relayOpts = append(relayOpts, events.WithSink(g.producer, cfg.Kafka.Topic))
	}
	g.relay = events.NewRelay(st.events, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, relayOpts...)

	g.ledger = ledger.New(cfg.Ledger, ledger.WithLogger(logger), ledger.WithMetrics(ledgermetrics.New()))
	g.nonces = nonce.New(nonces, nonce.WithLogger(logger), nonce.WithTTL(cfg.Nonce.TTL))
	g.lists = statuslist.New(st.lists, statuslist.WithLogger(logger), statuslist.WithMetrics(slmetrics.New()))

	reloader := &catalogReloader{}
	g.accreditation = accreditation.New(st.accreditation, st.tx,
		accreditation.Config{OperatorDID: cfg.Issuer.OperatorDID, BaseURL: cfg.Issuer.BaseURL},
		accreditation.WithLogger(logger),
		accreditation.WithMetrics(accmetrics.New()),
		accreditation.WithLedger(g.ledger),
		accreditation.WithNonces(g.nonces),
		accreditation.WithReloader(reloader),
		accreditation.WithEvents(publisher),
	)
	g.catalogSource = st.catalog
	g.catalog = catalog.New(st.catalog, g.accreditation, catalog.WithLogger(logger))
	reloader.catalog = g.catalog

	g.failures = st.onboarding
	g.pool = onboarding.NewPool(cfg.Onboarding,
		onboarding.WithLogger(logger),
		onboarding.WithMetrics(onbmetrics.New()),
		onboarding.WithEvents(publisher),
		onboarding.WithFailures(st.onboarding),
	)
	g.onboarding = onboarding.New(g.pool, g.ledger, g.lists, g.accreditation,
		onboarding.Config{OperatorDID: cfg.Issuer.OperatorDID, BaseURL: cfg.Issuer.BaseURL}, logger)
	g.accreditation.SetScheduler(g.onboarding)

	g.credentials = credentials.New(st.credentials, st.tx,
		credentials.WithLogger(logger),
		credentials.WithMetrics(credmetrics.New()),
		credentials.WithStatusRegistry(g.lists),
		credentials.WithLedgerRevoker(g.accreditation),
		credentials.WithEvents(publisher),
		credentials.WithMaterializedHook(g.accreditation.OnMaterialized),
		credentials.WithDeletedHook(g.accreditation.OnDeleted),
	)

	sgn := signer.New(cfg.Signer.URL, cfg.Issuer.BaseURL, cfg.Issuer.OperatorDID, keys, cfg.Signer.Timeout)
	g.openid = openid.New(openid.Config{
		BaseURL:               cfg.Issuer.BaseURL,
		VerifierID:            cfg.Issuer.VerifierID,
		IncludeAccreditations: cfg.Issuer.IncludeAccreditations,
	}, sgn, g.catalog, g.nonces, g.lists, g.credentials,
		openid.WithLogger(logger),
		openid.WithMetrics(openidmetrics.New()),
		openid.WithEntityData(entitydata.New(cfg.EntityData)),
		openid.WithAccreditations(g.accreditation),
		openid.WithKeys(keys),
	)
	return g, nil
}

// seedCatalog applies the seed file, if any, then loads the first snapshot.
func (g *gateway) seedCatalog(ctx context.Context) error {
	if g.cfg.CatalogFile != "" {
		seed, err := catalog.LoadSeedFile(g.cfg.CatalogFile)
		if err != nil {
			return err
		}
		if err := g.catalogSource.Apply(ctx, seed); err != nil {
			return fmt.Errorf("apply catalog seed: %w", err)
		}
	}
	return g.catalog.Reload(ctx)
}

type registrar interface {
	Register(r chi.Router)
}

// handlers lists every HTTP module in mount order.
func (g *gateway) handlers() []registrar {
	return []registrar{
		openidhandler.New(g.openid, g.logger),
		credhandler.New(g.credentials, g.logger),
		slhandler.New(g.lists, g.logger),
	}
}

// registerReadiness adds a /readyz check for every external resource in use.
func (g *gateway) registerReadiness(srv *httpserver.Server) {
	if g.db != nil {
		srv.AddReadinessCheck("postgres", g.db.PingContext)
	}
	if g.redis != nil {
		srv.AddReadinessCheck("redis", g.redis.Health)
	}
	if g.producer != nil {
		srv.AddReadinessCheck("kafka", g.producer.Ping)
	}
}

func (g *gateway) close() {
	if g.producer != nil {
		g.producer.Close()
	}
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			g.logger.Warn("failed to close redis", "error", err)
		}
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.logger.Warn("failed to close database", "error", err)
		}
	}
}
