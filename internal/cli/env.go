package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/client"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/dashboard"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/kv"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/session"
	"github.com/spec-kit/ticket-tracker/internal/store"
)

const (
	modeLocal  = "local"
	modeRemote = "remote"
)

// env is everything one command invocation needs. It is built per run and
// closed when the command returns.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	storage  kv.Storage
	sessions *session.Store
	session  *domain.Session
	client   *client.Client
	dash     *dashboard.Dashboard
}

func openEnv(ctx context.Context, flags *globalFlags) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.mode != "" {
		cfg.Client.Mode = strings.ToLower(flags.mode)
	}
	if flags.apiURL != "" {
		cfg.Client.APIURL = strings.TrimRight(flags.apiURL, "/")
	}

	logger, err := observability.NewCLILogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	storage, err := kv.Open(ctx, *cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	e := &env{
		cfg:      cfg,
		logger:   logger,
		storage:  storage,
		sessions: session.New(storage, cfg.Storage.SessionKey, logger),
	}

	sess, err := e.sessions.Read(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		e.Close()
		return nil, err
	}
	e.session = sess

	var (
		ticketStore store.Store
		role        = sess.Role()
	)
	switch cfg.Client.Mode {
	case "", modeLocal:
		policy := store.FailOnCorrupt
		if cfg.Storage.DiscardCorrupt {
			policy = store.DiscardCorrupt
		}
		ticketStore = store.NewLocal(storage,
			store.WithKey(cfg.Storage.TicketsKey),
			store.WithCorruptPolicy(policy),
			store.WithLogger(logger),
		)
		if flags.as != "" {
			role = domain.Role(strings.ToLower(flags.as))
			if !role.Valid() {
				e.Close()
				return nil, fmt.Errorf("unknown role %q", flags.as)
			}
		}
	case modeRemote:
		if cfg.Client.APIURL == "" {
			e.Close()
			return nil, errors.New("remote mode requires --api-url or TICKETS_API_URL")
		}
		if flags.as != "" {
			e.Close()
			return nil, errors.New("--as only applies to local mode; the session decides the role")
		}
		e.client = client.New(cfg.Client.APIURL,
			client.WithSession(sess),
			client.WithPageSize(cfg.Client.PageSize),
			client.WithTimeout(cfg.Client.HTTPTimeout()),
			client.WithLogger(logger),
		)
		ticketStore = e.client
	default:
		e.Close()
		return nil, fmt.Errorf("unknown mode %q (want local or remote)", cfg.Client.Mode)
	}

	e.dash = dashboard.New(ticketStore, role, logger)
	return e, nil
}

func (e *env) mode() string {
	if e.client != nil {
		return modeRemote
	}
	return modeLocal
}

// Close releases the storage backend and flushes the logger.
func (e *env) Close() {
	if err := e.storage.Close(); err != nil {
		e.logger.Warn("close storage", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// withEnv opens an env for the duration of fn.
func withEnv(ctx context.Context, flags *globalFlags, fn func(*env) error) error {
	e, err := openEnv(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}
