// Package server es el composition root: arma store, seguridad, services,
// controllers, router, hub realtime y sweeper a partir de la configuración.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/config"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	authctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/auth"
	communityctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/community"
	custodyctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/custody"
	healthctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/health"
	mw "github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	"github.com/dropDatabas3/opslinkcad/internal/http/router"
	authsvc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
	communitysvc "github.com/dropDatabas3/opslinkcad/internal/http/services/community"
	custodysvc "github.com/dropDatabas3/opslinkcad/internal/http/services/custody"
	healthsvc "github.com/dropDatabas3/opslinkcad/internal/http/services/health"
	"github.com/dropDatabas3/opslinkcad/internal/jobs"
	"github.com/dropDatabas3/opslinkcad/internal/lockout"
	"github.com/dropDatabas3/opslinkcad/internal/metrics"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/rate"
	"github.com/dropDatabas3/opslinkcad/internal/realtime"
	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
	"github.com/dropDatabas3/opslinkcad/internal/security/password"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
	"github.com/dropDatabas3/opslinkcad/internal/security/totp"
	"github.com/dropDatabas3/opslinkcad/internal/session"
	store "github.com/dropDatabas3/opslinkcad/internal/store"
)

// Options permite inyectar piezas ya construidas (tests).
type Options struct {
	// DAL reemplaza store.Open.
	DAL store.DataAccessLayer

	// Now fija el reloj de todo el dominio.
	Now func() time.Time

	// RuntimeMetrics agrega collectors de proceso/Go al registry.
	RuntimeMetrics bool
}

// App es la aplicación armada. Start/Shutdown controlan su ciclo de vida.
type App struct {
	Config  *config.Config
	Handler http.Handler
	DAL     store.DataAccessLayer
	Hub     *realtime.Hub
	Sweeper *jobs.Sweeper
	Metrics *metrics.Metrics
	Codec   *token.Codec

	redis   *rdb.Client
	ownsDAL bool
}

// Build arma la App. No abre sockets ni lanza goroutines.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.From(ctx).With(logger.Component("wiring"))
	app := &App{Config: cfg}

	// ─── Store ───
	dal := opts.DAL
	if dal == nil {
		var err error
		dal, err = store.Open(ctx, store.Config{
			Driver:    cfg.Storage.Driver,
			DSN:       cfg.Storage.DSN,
			Database:  cfg.Storage.Database,
			OpTimeout: cfg.Storage.OpTimeout,
			MaxConns:  cfg.Storage.MaxConns,
			MinConns:  cfg.Storage.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		app.ownsDAL = true
	}
	app.DAL = dal

	fail := func(err error) (*App, error) {
		_ = app.Close(context.Background())
		return nil, err
	}

	// ─── Seguridad ───
	codec, err := token.NewCodec(token.Config{
		AccessKey:  []byte(cfg.JWT.AccessSecret),
		RefreshKey: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Now:        opts.Now,
	})
	if err != nil {
		return fail(err)
	}
	app.Codec = codec

	cipher, err := fieldcipher.NewFromBase64(cfg.Security.FLEMasterKey)
	if err != nil {
		return fail(err)
	}
	hasher, err := password.NewHasher(cfg.Security.PasswordHash, cfg.Security.BcryptCost)
	if err != nil {
		return fail(err)
	}
	policy := password.DefaultPolicy()
	if cfg.Security.BlacklistPath != "" {
		bl, err := password.LoadBlacklist(cfg.Security.BlacklistPath)
		if err != nil {
			return fail(fmt.Errorf("load password blacklist: %w", err))
		}
		policy.Blacklist = bl
	}
	verifier := totp.NewVerifier(cfg.Auth.TOTPIssuer)
	verifier.Now = opts.Now

	// ─── Métricas ───
	m, err := metrics.New(opts.RuntimeMetrics)
	if err != nil {
		return fail(err)
	}
	app.Metrics = m

	// ─── Dominio ───
	// la sesión vive lo mismo que el access token
	sessions := session.NewStore(dal.Sessions(), dal.Devices(), session.WithTTL(codec.AccessTTL()), session.WithClock(opts.Now))
	authenticator := session.NewAuthenticator(codec, sessions, dal.Users())
	guardOpts := []lockout.Option{lockout.WithClock(opts.Now)}
	if cfg.Auth.LockoutThreshold > 0 {
		guardOpts = append(guardOpts, lockout.WithThreshold(int64(cfg.Auth.LockoutThreshold)))
	}
	if cfg.Auth.LockoutWindow > 0 {
		guardOpts = append(guardOpts, lockout.WithWindow(cfg.Auth.LockoutWindow))
	}
	guard := lockout.New(dal.Attempts(), guardOpts...)
	onAppend := func(ch string) audit.Option {
		return audit.WithOnAppend(func(context.Context, repository.ChainEvent) { m.ChainAppended(ch) })
	}
	auditChain := audit.NewAuditChain(dal.AuditEvents(), audit.WithClock(opts.Now), onAppend("audit"))
	evidenceChain := audit.NewEvidenceChain(dal.EvidenceChain(), audit.WithClock(opts.Now), onAppend("evidence"))

	app.Hub = realtime.NewHub(m)
	app.Sweeper = jobs.NewSweeper(jobs.Stores{
		Sessions:      dal.Sessions(),
		RefreshTokens: dal.RefreshTokens(),
		Attempts:      dal.Attempts(),
	},
		jobs.WithInterval(cfg.Jobs.SweepInterval),
		jobs.WithAttemptRetention(cfg.Jobs.AttemptRetention),
		jobs.WithClock(opts.Now),
		jobs.WithObserver(func(r jobs.Result, err error) {
			m.SweepRun(r.Sessions, r.RefreshTokens, r.Attempts, err)
		}),
	)

	// ─── Rate limit ───
	var limiter rate.Limiter
	var redisPing healthsvc.PingFunc
	if cfg.Rate.Enabled {
		switch cfg.Cache.Kind {
		case "redis":
			app.redis = rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
			rl := rate.NewRedisLimiter(app.redis, cfg.Cache.Redis.Prefix, cfg.Rate.Max, cfg.Rate.Window)
			limiter = rl
			redisPing = rl.Ping
		default:
			limiter = rate.NewMemoryLimiter(cfg.Rate.Max, cfg.Rate.Window)
		}
	}

	// ─── Services / controllers ───
	authServices := authsvc.NewServices(authsvc.Deps{
		DAL:      dal,
		Codec:    codec,
		Sessions: sessions,
		Lockout:  guard,
		Hasher:   hasher,
		Policy:   policy,
		TOTP:     verifier,
		Cipher:   cipher,
		Audit:    auditChain,
		OnEvent:  m.AuthEvent,
		Now:      opts.Now,
	})
	custodyService := custodysvc.NewService(custodysvc.Deps{
		Evidence:     evidenceChain,
		EvidenceRepo: dal.EvidenceChain(),
		Audit:        auditChain,
		AuditRepo:    dal.AuditEvents(),
		Hub:          app.Hub,
	})
	healthService := healthsvc.NewService(healthsvc.Deps{
		DB:    dal.Ping,
		Redis: redisPing,
		WS:    app.Hub.State(),
		Jobs:  app.Sweeper.State(),
		Now:   opts.Now,
	})

	origins := mw.NewOriginPolicy(cfg.Server.CORSAllowedOrigins)
	proxies, err := mw.NewProxyPolicy(cfg.Server.TrustedProxies)
	if err != nil {
		return fail(err)
	}
	gateCfg := realtime.DefaultConfig()
	gateCfg.CookieName = cfg.Auth.Cookie.Name

	app.Handler = router.New(router.Deps{
		Auth: authctrl.NewControllers(authServices, authctrl.CookieConfig{
			Name:       cfg.Auth.Cookie.Name,
			Domain:     cfg.Auth.Cookie.Domain,
			Secure:     cfg.Auth.Cookie.Secure,
			RefreshTTL: codec.RefreshTTL(),
		}),
		Custody:       custodyctrl.NewController(custodyService),
		Communities:   communityctrl.NewController(communitysvc.NewService(dal.Tenants())),
		Health:        healthctrl.NewController(healthService),
		Gate:          realtime.NewGate(app.Hub, origins, authenticator, gateCfg),
		Authenticator: authenticator,
		CookieName:    cfg.Auth.Cookie.Name,
		CORS:          origins,
		Proxies:       proxies,
		RateLimit: mw.RateLimitConfig{
			Limiter: limiter,
			Max:     int64(cfg.Rate.Max),
		},
		Metrics: m,
	})

	log.Info("application wired",
		logger.String("driver", dal.Driver()),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", limiter != nil),
	)
	return app, nil
}

// Close libera conexiones propias (store abierto por Build, cliente redis).
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.ownsDAL && a.DAL != nil {
		if err := a.DAL.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
