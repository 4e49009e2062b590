// Package plugin defines the contract between the plughost host and its
// dynamically loaded extension modules.
//
// A plugin is an independently compiled unit that advertises a set of
// command names and executes them on request. The host obtains instances
// through a single factory entry point (see FactorySymbol) and from then on
// talks to them only through the Plugin interface.
package plugin

import (
	"context"
	"slices"
)

// Plugin defines the interface that all plugins must implement.
//
// Implementations are not required to be safe for concurrent use. A host that
// calls into the same instance from several goroutines must synchronize the
// calls itself unless the plugin reports otherwise (see ConcurrentSafe).
type Plugin interface {
	// Name returns the plugin's display name.
	// It must be non-empty and must not change for the lifetime of the instance.
	Name() string

	// Commands returns the exhaustive list of command names this plugin handles.
	// The order is only used when listing commands in help output.
	Commands() []string

	// Execute runs command with the raw, unparsed remainder of the invocation
	// arguments. The plugin owns its own argument grammar.
	//
	// command must be one of the values returned by Commands. An unrecognized
	// command fails with a *CommandNotFoundError; any other failure is a
	// plugin-domain error and is returned as-is.
	Execute(ctx context.Context, command string, args []string) error
}

// HelpProvider is implemented by plugins that customize help output.
//
// HelpOutput must not mutate plugin state. Returning HelpNone means the
// plugin does not customize help for the given arguments.
type HelpProvider interface {
	HelpOutput(args []string) (HelpMode, string)
}

// ConcurrentSafe is implemented by plugins that tolerate concurrent calls.
// Plugins that don't implement it are serialized by the dispatcher.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// HelpOutput returns the help customization for p, applying the default of
// "no customization" when p does not implement HelpProvider.
func HelpOutput(p Plugin, args []string) (HelpMode, string) {
	hp, ok := p.(HelpProvider)
	if !ok {
		return HelpNone, ""
	}
	mode, text := hp.HelpOutput(args)
	if mode == HelpNone {
		return HelpNone, ""
	}
	return mode, text
}

// Handles reports whether command is in p's advertised command set.
func Handles(p Plugin, command string) bool {
	return slices.Contains(p.Commands(), command)
}

// CheckCommand returns a *CommandNotFoundError if p does not advertise
// command. Plugins call it at the top of Execute to stay the authority for
// their own namespace.
func CheckCommand(p Plugin, command string) error {
	if !Handles(p, command) {
		return &CommandNotFoundError{Command: command}
	}
	return nil
}

// IsConcurrentSafe reports whether p declared itself safe for concurrent use.
func IsConcurrentSafe(p Plugin) bool {
	cs, ok := p.(ConcurrentSafe)
	return ok && cs.ConcurrentSafe()
}
