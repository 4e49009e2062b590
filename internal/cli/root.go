package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joncooperworks/plughost/plugin"
)

// Version is overridden by ldflags.
var Version = "dev"

// NewRootCommand builds the command tree: the built-in commands plus one
// subcommand per command in the app's registry.
func NewRootCommand(app *App) *cobra.Command {
	var hf hostFlags

	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Run commands provided by plugin modules",
		Long: `plughost loads plugin modules (Go plugins or Extism WASM modules) and
routes each command to the plugin that registered it.

Plugins are listed in the config file or passed with --plugin.`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			// Only reached for names no subcommand matched.
			return app.Dispatcher.Dispatch(cmd.Context(), args[0], args[1:])
		},
	}
	rootCmd.FParseErrWhitelist.UnknownFlags = true
	addHostFlags(rootCmd.PersistentFlags(), &hf)

	rootCmd.AddCommand(newPluginsCommand(app))
	rootCmd.AddCommand(newKeysCommand(app))
	rootCmd.AddCommand(newSignCommand(app))

	bindPluginCommands(rootCmd, app)
	return rootCmd
}

// bindPluginCommands adds a subcommand for every registered command that
// does not shadow a built-in.
func bindPluginCommands(rootCmd *cobra.Command, app *App) {
	reserved := []string{"help", "completion"}
	for _, c := range rootCmd.Commands() {
		reserved = append(reserved, c.Name())
		reserved = append(reserved, c.Aliases...)
	}

	reg := app.Dispatcher.Registry()
	for _, name := range reg.Commands() {
		owner, _ := reg.Owner(name)
		if slices.Contains(reserved, name) {
			app.Logger.Warn().Str("command", name).Str("plugin", owner).Msg("command shadows a built-in and is not bound")
			continue
		}
		rootCmd.AddCommand(newPluginCommand(app, name, owner))
	}
}

func newPluginCommand(app *App, name, owner string) *cobra.Command {
	cmd := &cobra.Command{
		Use:                name + " [args...]",
		Short:              fmt.Sprintf("Run %s (plugin %s)", name, owner),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && (args[0] == "--help" || args[0] == "-h") {
				renderPluginHelp(app, cmd, args[1:])
				return nil
			}
			return app.Dispatcher.Dispatch(cmd.Context(), name, args)
		},
	}
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		renderPluginHelp(app, c, args)
	})
	return cmd
}

// renderPluginHelp composes the owning plugin's help with the host's
// generated usage.
func renderPluginHelp(app *App, cmd *cobra.Command, args []string) {
	system := cmd.Short + "\n\n" + cmd.UsageString()
	text := app.Dispatcher.RenderHelp(cmd.Name(), args, system)
	out := cmd.OutOrStdout()
	fmt.Fprint(out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(out)
	}
}

// pluginSource reports where a registered plugin was loaded from.
func pluginSource(p plugin.Plugin) (path, kind string) {
	if inst, ok := p.(*plugin.Instance); ok && inst.Module() != nil {
		return inst.Module().Path(), inst.Module().Kind()
	}
	return "", ""
}
