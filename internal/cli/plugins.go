package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func newPluginsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List loaded plugins and the commands they own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderPlugins(app))
			return nil
		},
	}
}

func renderPlugins(app *App) string {
	reg := app.Dispatcher.Registry()
	plugins := reg.Plugins()

	title := titleStyle.Render(fmt.Sprintf("Plugins (%d loaded, %d commands)", len(plugins), reg.Len()))
	lines := []string{title}

	if len(plugins) == 0 {
		lines = append(lines, mutedStyle.Render("  No plugins loaded. Pass --plugin or set plugins in the config file."))
	} else {
		lines = append(lines, headerStyle.Render(fmt.Sprintf("%-16s │ %-6s │ %-24s │ %s", "NAME", "KIND", "COMMANDS", "SOURCE")))
		for _, p := range plugins {
			path, kind := pluginSource(p)
			cmds := p.Commands()
			owned := make([]string, 0, len(cmds))
			for _, c := range cmds {
				if owner, ok := reg.Owner(c); ok && owner == p.Name() {
					owned = append(owned, c)
				}
			}
			commands := strings.Join(owned, ", ")
			if commands == "" {
				commands = "-"
			}
			lines = append(lines, fmt.Sprintf("%-16s │ %-6s │ %-24s │ %s",
				truncate(p.Name(), 16), kind, truncate(commands, 24), path))
		}
	}

	for _, err := range app.LoadErrors {
		lines = append(lines, errorStyle.Render("  ✗ "+err.Error()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
