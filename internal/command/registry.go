// ABOUTME: Thread-safe registry of commands and the component families they own
// ABOUTME: Rejects duplicate command names and family collisions at registration time

package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrDuplicateCommand indicates a command with the same name is already registered.
var ErrDuplicateCommand = errors.New("command already registered")

// ErrDuplicateFamily indicates a routing key family is already owned by another command.
var ErrDuplicateFamily = errors.New("component family already registered")

// CancelFamily is handled by the dispatcher itself and cannot be claimed.
const CancelFamily = "cancel"

type familyEntry struct {
	family  Family
	handler Interactive
	owner   string
}

// Registry maps command names and routing key families to handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	families map[string]*familyEntry
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]Command),
		families: make(map[string]*familyEntry),
		logger:   logger.With("component", "registry"),
	}
}

// Register adds a command and, if it is Interactive, its families.
// Nothing is registered when any name collides.
func (r *Registry) Register(cmd Command) error {
	spec := cmd.Spec()
	if spec.Name == "" {
		return errors.New("command name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, spec.Name)
	}

	var families []Family
	interactive, isInteractive := cmd.(Interactive)
	if isInteractive {
		families = interactive.Families()
		seen := make(map[string]bool, len(families))
		for _, f := range families {
			if f.Name == CancelFamily || seen[f.Name] {
				return fmt.Errorf("%w: %s", ErrDuplicateFamily, f.Name)
			}
			if existing, exists := r.families[f.Name]; exists {
				return fmt.Errorf("%w: '%s' already registered by command '%s'",
					ErrDuplicateFamily, f.Name, existing.owner)
			}
			seen[f.Name] = true
		}
	}

	r.commands[spec.Name] = cmd
	for _, f := range families {
		r.families[f.Name] = &familyEntry{family: f, handler: interactive, owner: spec.Name}
	}

	_, autocompletes := cmd.(Autocompleter)
	r.logger.Info("=== COMMAND REGISTERED ===",
		"command", spec.Name,
		"families", len(families),
		"autocomplete", autocompletes,
		"deferred", spec.Deferred,
	)
	return nil
}

// Command looks up a command by name.
func (r *Registry) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Family looks up the handler for a routing key family.
func (r *Registry) Family(name string) (Family, Interactive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.families[name]
	if !ok {
		return Family{}, nil, false
	}
	return e.family, e.handler, true
}

// Names returns every registered command name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns every command's spec, sorted by name.
func (r *Registry) Specs() []Spec {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.commands[name].Spec())
	}
	return specs
}
