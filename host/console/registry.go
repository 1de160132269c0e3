package console

import (
	"sort"
	"sync"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownCommand is returned by Dispatch for a name not registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage is returned when a command gets too few or too many
	// arguments.
	ErrUsage = errors.New("usage")

	// ErrQuit is returned by the quit command to end the session.
	ErrQuit = errors.New("quit")
)

// Handler runs a command. args excludes the command name.
type Handler func(c *Console, args []string) error

// Command is one console command.
type Command struct {
	Name    string
	Usage   string // argument synopsis, e.g. "sm value"
	Help    string
	MinArgs int
	MaxArgs int // -1 for no limit
	Handler Handler
}

// Registry holds the commands of a console by name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command. Names must be unique.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return errors.New("command needs a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return errors.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Lookup retrieves a command by name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Count returns the number of registered commands.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Names returns the registered names in sorted order.
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

// Dispatch splits line with shell quoting rules and runs the named
// command. Blank lines and lines starting with '#' do nothing.
func (r *Registry) Dispatch(c *Console, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "parse")
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		return errors.Wrap(ErrUnknownCommand, args[0])
	}
	args = args[1:]
	if len(args) < cmd.MinArgs || (cmd.MaxArgs >= 0 && len(args) > cmd.MaxArgs) {
		return errors.Wrapf(ErrUsage, "%s %s", cmd.Name, cmd.Usage)
	}
	return cmd.Handler(c, args)
}
