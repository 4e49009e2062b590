package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/joncooperworks/plughost/internal/config"
	"github.com/joncooperworks/plughost/internal/logging"
	"github.com/joncooperworks/plughost/loader"
	"github.com/joncooperworks/plughost/plugin"
)

// ErrNoPlugins is returned when require_plugins is set and nothing loaded.
var ErrNoPlugins = errors.New("no plugins loaded")

// hostFlags are the persistent flags needed before the command tree exists.
type hostFlags struct {
	configPath string
	plugins    []string
	logLevel   string
}

func addHostFlags(fs *pflag.FlagSet, hf *hostFlags) {
	fs.StringVar(&hf.configPath, "config", "", "config file path (default is $HOME/.plughost/config.toml)")
	fs.StringArrayVarP(&hf.plugins, "plugin", "p", nil, "plugin module to load (repeatable)")
	fs.StringVar(&hf.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

// parseHostFlags reads the host flags that precede the first command name.
// Plugin commands are bound from the resulting configuration, so this has
// to happen before cobra parses the full command line.
func parseHostFlags(args []string) hostFlags {
	var hf hostFlags
	fs := pflag.NewFlagSet("plughost", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.BoolP("help", "h", false, "")
	addHostFlags(fs, &hf)
	// Errors are reported again by cobra.
	_ = fs.Parse(args)
	return hf
}

// Options configure Run.
type Options struct {
	Args         []string
	Stdout       io.Writer
	Stderr       io.Writer
	OpenKeyStore KeyStoreOpener
}

// Run boots the host and executes the command line. It returns the
// process exit code.
func Run(ctx context.Context, opts Options) int {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	openStore := opts.OpenKeyStore
	if openStore == nil {
		openStore = OpenKeyring
	}

	app, err := bootstrap(ctx, opts.Args, stderr, openStore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(ctx); err != nil {
			app.Logger.Warn().Err(err).Msg("failed to release plugins")
		}
	}()

	root := NewRootCommand(app)
	root.SetArgs(opts.Args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func bootstrap(ctx context.Context, args []string, stderr io.Writer, openStore KeyStoreOpener) (*App, error) {
	hf := parseHostFlags(args)

	path, allowMissing := hf.configPath, false
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
		allowMissing = true
	}
	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return nil, err
	}
	cfg.Plugins = append(cfg.Plugins, hf.plugins...)
	if hf.logLevel != "" {
		cfg.Log.Level = hf.logLevel
	}

	logger, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Timestamp: cfg.Log.Timestamp,
		Out:       stderr,
	})
	if err != nil {
		return nil, err
	}
	log.Logger = logger

	instances, loadErrs, err := loadPlugins(ctx, cfg, logger, openStore)
	if err != nil {
		return nil, err
	}

	app := NewApp(ctx, cfg, logger, instances)
	app.OpenKeyStore = openStore
	app.LoadErrors = loadErrs

	if cfg.RequirePlugins && len(app.instances) == 0 {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("%w: require_plugins is set (%d failed)", ErrNoPlugins, len(loadErrs))
	}
	return app, nil
}

func loadPlugins(ctx context.Context, cfg config.Config, logger zerolog.Logger, openStore KeyStoreOpener) ([]*plugin.Instance, []error, error) {
	paths, err := cfg.ModulePaths()
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, nil
	}

	opts := loader.Options{Logger: &logger}
	if v, err := newVerifier(cfg.Trust, logger, openStore); err != nil {
		return nil, nil, fmt.Errorf("open trust store: %w", err)
	} else if v != nil {
		opts.Verifier = v
	}

	instances, errs := loader.LoadAll(ctx, paths, opts)
	logger.Debug().Int("loaded", len(instances)).Int("failed", len(errs)).Msg("plugins loaded")
	return instances, errs, nil
}
