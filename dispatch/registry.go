// Package dispatch routes command names to the plugins that own them.
package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/joncooperworks/plughost/plugin"
)

var (
	// ErrCommandConflict is wrapped by *ConflictError.
	ErrCommandConflict = errors.New("command already registered")
	// ErrInvalidPlugin is returned for a nil plugin or one with an empty name.
	ErrInvalidPlugin = errors.New("invalid plugin")
	// ErrInvalidCommand is returned when a plugin advertises a command name
	// that is empty, contains whitespace or starts with a dash.
	ErrInvalidCommand = errors.New("invalid command name")
)

// Conflict names a command a rejected plugin shares with an earlier one.
type Conflict struct {
	Command string
	Owner   string
}

// ConflictError reports that a plugin was rejected because some of its
// commands are already owned. None of its commands were registered.
type ConflictError struct {
	Plugin    string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s (owned by %s)", c.Command, c.Owner)
	}
	return fmt.Sprintf("plugin %s rejected: %s: %s", e.Plugin, ErrCommandConflict, strings.Join(parts, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrCommandConflict
}

// entry pairs a registered plugin with the lock that serializes calls into
// it. mu is nil for concurrent-safe plugins.
type entry struct {
	p  plugin.Plugin
	mu *sync.Mutex
}

// Registry maps command names to the plugin that owns them. A Registry is
// immutable once built and safe for concurrent readers.
type Registry struct {
	owners   map[string]*entry
	commands []string
	entries  []*entry
}

// Builder assembles a Registry. The first plugin to register a command owns
// it; a later plugin that advertises an owned command is rejected whole.
type Builder struct {
	owners   map[string]*entry
	commands []string
	entries  []*entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{owners: make(map[string]*entry)}
}

// Add registers every command p advertises, or none of them.
// Duplicate names inside p's own command list collapse to the first.
func (b *Builder) Add(p plugin.Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidPlugin)
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}

	var (
		cmds      []string
		seen      = make(map[string]bool)
		conflicts []Conflict
	)
	for _, cmd := range p.Commands() {
		if err := validateCommand(cmd); err != nil {
			return fmt.Errorf("%w: plugin %s: %s", ErrInvalidCommand, name, err)
		}
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		if owner, ok := b.owners[cmd]; ok {
			conflicts = append(conflicts, Conflict{Command: cmd, Owner: owner.p.Name()})
			continue
		}
		cmds = append(cmds, cmd)
	}
	if len(conflicts) > 0 {
		return &ConflictError{Plugin: name, Conflicts: conflicts}
	}

	e := &entry{p: p}
	if !plugin.IsConcurrentSafe(p) {
		e.mu = new(sync.Mutex)
	}
	for _, cmd := range cmds {
		b.owners[cmd] = e
	}
	b.commands = append(b.commands, cmds...)
	b.entries = append(b.entries, e)
	return nil
}

// validateCommand rejects names a command line cannot address as a single
// word.
func validateCommand(cmd string) error {
	switch {
	case cmd == "":
		return errors.New("empty command")
	case strings.HasPrefix(cmd, "-"):
		return fmt.Errorf("command %q starts with a dash", cmd)
	case strings.ContainsFunc(cmd, unicode.IsSpace):
		return fmt.Errorf("command %q contains whitespace", cmd)
	}
	return nil
}

// Build returns a Registry holding everything added so far. The Builder
// can keep being used; later additions do not affect the returned Registry.
func (b *Builder) Build() *Registry {
	owners := make(map[string]*entry, len(b.owners))
	for cmd, e := range b.owners {
		owners[cmd] = e
	}
	return &Registry{
		owners:   owners,
		commands: append([]string(nil), b.commands...),
		entries:  append([]*entry(nil), b.entries...),
	}
}

// NewRegistry builds a Registry from plugins in order. Plugins rejected by
// Builder.Add are skipped and their errors returned joined.
func NewRegistry(plugins ...plugin.Plugin) (*Registry, error) {
	b := NewBuilder()
	var errs []error
	for _, p := range plugins {
		if err := b.Add(p); err != nil {
			errs = append(errs, err)
		}
	}
	return b.Build(), errors.Join(errs...)
}

// Lookup returns the plugin that owns command.
func (r *Registry) Lookup(command string) (plugin.Plugin, error) {
	e, err := r.lookup(command)
	if err != nil {
		return nil, err
	}
	return e.p, nil
}

func (r *Registry) lookup(command string) (*entry, error) {
	if e, ok := r.owners[command]; ok {
		return e, nil
	}
	return nil, &plugin.CommandNotFoundError{Command: command}
}

// entryFor finds the entry registered for p. Plugins whose dynamic value
// is not comparable are never matched.
func (r *Registry) entryFor(p plugin.Plugin) *entry {
	for _, e := range r.entries {
		if samePlugin(e.p, p) {
			return e
		}
	}
	return nil
}

func samePlugin(a, b plugin.Plugin) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

// Owner returns the name of the plugin that owns command.
func (r *Registry) Owner(command string) (string, bool) {
	e, ok := r.owners[command]
	if !ok {
		return "", false
	}
	return e.p.Name(), true
}

// Commands returns every registered command in registration order.
func (r *Registry) Commands() []string {
	return append([]string(nil), r.commands...)
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []plugin.Plugin {
	plugins := make([]plugin.Plugin, len(r.entries))
	for i, e := range r.entries {
		plugins[i] = e.p
	}
	return plugins
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.commands)
}
