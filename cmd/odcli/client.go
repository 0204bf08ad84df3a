package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	onedrivesdk "github.com/tonimelisma/onedrive-sdk-go"
	"github.com/tonimelisma/onedrive-sdk-go/auth"
	"github.com/tonimelisma/onedrive-sdk-go/store"
)

// Store namespaces. Each authenticator owns its namespace exclusively; the
// resolver's disambiguation record lives in a third.
const (
	nsConsumer  = "consumer"
	nsDirectory = "directory"
	nsResolver  = "resolver"
)

// session bundles everything a command needs to talk to OneDrive.
// Close releases the underlying store.
type session struct {
	cfg           *Config
	logger        *slog.Logger
	authenticator *auth.Resolver
	client        *onedrivesdk.Client
	closer        io.Closer
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}

// openStore builds the configured login-state backend.
func openStore(cfg *Config, logger *slog.Logger) (namespacer, io.Closer, error) {
	if cfg.Store == "sqlite" {
		s, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "login.db"), logger)
		if err != nil {
			return nil, nil, err
		}

		return s, s, nil
	}

	s, err := store.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}

	return s, s, nil
}

// namespacer is satisfied by both store backends.
type namespacer interface {
	Namespace(name string) auth.TokenStore
}

// newSession loads config, opens the store, and wires the resolver and the
// API client. The resolver is initialized; login state, if any, is loaded
// but not refreshed.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is not set; add it to %s", filepath.Join(DefaultConfigDir(), configFileName))
	}

	logger := buildLogger(cfg)

	st, closer, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	ui := &loopbackUI{}

	consumer := auth.NewConsumerAuthenticator(auth.ConsumerConfig{
		ClientID:    cfg.ClientID,
		Scopes:      cfg.Scopes,
		Store:       st.Namespace(nsConsumer),
		UI:          ui,
		RedirectURL: cfg.RedirectURL,
		HTTPClient:  defaultHTTPClient(),
		Logger:      logger,
	})

	directory := auth.NewDirectoryAuthenticator(auth.DirectoryConfig{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Store:       st.Namespace(nsDirectory),
		UI:          ui,
		HTTPClient:  defaultHTTPClient(),
		Logger:      logger,
	})

	resolver := auth.NewResolver(auth.ResolverConfig{
		Consumer:          consumer,
		Directory:         directory,
		Store:             st.Namespace(nsResolver),
		UI:                ui,
		CallbackAuthority: cfg.CallbackAuthority,
		Logger:            logger,
	})

	if err := resolver.Init(ctx); err != nil {
		closer.Close()
		return nil, err
	}

	client, err := onedrivesdk.New(onedrivesdk.Config{
		Authenticator: resolver,
		HTTPClient:    defaultHTTPClient(),
		Logger:        logger,
	})
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &session{
		cfg:           cfg,
		logger:        logger,
		authenticator: resolver,
		client:        client,
		closer:        closer,
	}, nil
}

// requireLogin restores a signed-in account from persisted state, failing
// with a pointer to the login command when none exists.
func requireLogin(ctx context.Context, s *session) error {
	account, err := s.authenticator.LoginSilent(ctx)
	if err != nil {
		return fmt.Errorf("restoring login: %w", err)
	}

	if account == nil {
		return fmt.Errorf("not logged in; run 'odcli login' first")
	}

	return nil
}
