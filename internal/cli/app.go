// Package cli implements the plughost command line host.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/plughost/dispatch"
	"github.com/joncooperworks/plughost/internal/config"
	"github.com/joncooperworks/plughost/loader"
	"github.com/joncooperworks/plughost/plugin"
	"github.com/joncooperworks/plughost/trust"
)

// KeyringPasswordEnv unlocks the encrypted file keyring backend.
const KeyringPasswordEnv = "PLUGHOST_KEYRING_PASSWORD"

// KeyStoreOpener opens the trusted key store described by the config.
type KeyStoreOpener func(cfg config.TrustConfig) (trust.KeyStore, error)

// OpenKeyring is the default KeyStoreOpener.
func OpenKeyring(cfg config.TrustConfig) (trust.KeyStore, error) {
	return trust.OpenKeyring(trust.KeyringConfig{
		Service:      cfg.Service,
		Backends:     cfg.Backends,
		FileDir:      cfg.FileDir,
		FilePassword: os.Getenv(KeyringPasswordEnv),
	})
}

// App is the state shared by every command: configuration, logger, and
// the plugins that made it into the registry.
type App struct {
	Config       config.Config
	Logger       zerolog.Logger
	Dispatcher   *dispatch.Dispatcher
	OpenKeyStore KeyStoreOpener

	instances []*plugin.Instance
	// LoadErrors are the load failures that were skipped at startup.
	LoadErrors []error
}

// NewApp registers instances in order. An instance rejected by the
// registry is released immediately and its error logged.
func NewApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, instances []*plugin.Instance) *App {
	app := &App{
		Config:       cfg,
		Logger:       logger,
		OpenKeyStore: OpenKeyring,
	}

	b := dispatch.NewBuilder()
	for _, inst := range instances {
		if err := b.Add(inst); err != nil {
			logger.Warn().Err(err).Str("plugin", inst.Name()).Str("path", inst.Module().Path()).Msg("plugin not registered")
			if rerr := inst.Release(ctx); rerr != nil {
				logger.Warn().Err(rerr).Str("plugin", inst.Name()).Msg("failed to release rejected plugin")
			}
			continue
		}
		app.instances = append(app.instances, inst)
	}
	app.Dispatcher = dispatch.New(b.Build(), dispatch.WithLogger(logger))
	return app
}

// Instances returns the registered plugin instances in load order.
func (a *App) Instances() []*plugin.Instance {
	return append([]*plugin.Instance(nil), a.instances...)
}

// Close releases every registered instance and its module.
func (a *App) Close(ctx context.Context) error {
	err := loader.ReleaseAll(ctx, a.instances)
	a.instances = nil
	a.Dispatcher.Swap(nil)
	return err
}

func newVerifier(cfg config.TrustConfig, logger zerolog.Logger, open KeyStoreOpener) (*trust.Verifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if open == nil {
		return nil, errors.New("no key store configured")
	}
	store, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &trust.Verifier{Store: store, Required: cfg.Required, Logger: &logger}, nil
}
