package plugin

import (
	"fmt"
	"strings"
)

// HelpMode controls how plugin-supplied help text combines with the help the
// host generates for a command.
type HelpMode int

const (
	// HelpNone means the plugin does not customize help; host help alone is shown.
	HelpNone HelpMode = iota
	// HelpOverride replaces host help entirely with the plugin's text.
	HelpOverride
	// HelpPrepend shows the plugin's text before host help.
	HelpPrepend
)

// String returns the lowercase name of the mode.
func (m HelpMode) String() string {
	switch m {
	case HelpNone:
		return "none"
	case HelpOverride:
		return "override"
	case HelpPrepend:
		return "prepend"
	default:
		return fmt.Sprintf("HelpMode(%d)", int(m))
	}
}

// ParseHelpMode parses the lowercase name produced by String.
// The empty string parses as HelpNone.
func ParseHelpMode(s string) (HelpMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return HelpNone, nil
	case "override":
		return HelpOverride, nil
	case "prepend":
		return HelpPrepend, nil
	default:
		return HelpNone, fmt.Errorf("unknown help mode %q", s)
	}
}

// ComposeHelp combines plugin help text with host help text according to mode.
//
// Modes outside the three defined values compose as HelpNone.
func ComposeHelp(mode HelpMode, pluginText, systemText string) string {
	switch mode {
	case HelpOverride:
		return pluginText
	case HelpPrepend:
		if pluginText == "" {
			return systemText
		}
		if systemText == "" {
			return pluginText
		}
		if !strings.HasSuffix(pluginText, "\n") {
			pluginText += "\n"
		}
		return pluginText + systemText
	default:
		return systemText
	}
}
