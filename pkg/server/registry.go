package server

import "strings"

// NamespacePrefix marks staff commands. A command registered with
// Restricted set is reachable only as "@name"; its bare name never
// resolves, and "@" on an ordinary command never resolves either.
// This keeps the staff namespace from colliding with conversational
// verbs that share short names.
const NamespacePrefix = "@"

// CommandHandler is the signature for game command implementations.
// arg is the raw argument string exactly as the player typed it (or an
// alias's fixed override); handlers trim and parse it themselves.
type CommandHandler func(g *Game, d *Descriptor, arg string)

// Command represents a registered game command.
type Command struct {
	Name       string
	Desc       string
	Restricted bool // reachable only via the @ namespace prefix
	Handler    CommandHandler
}

// aliasEntry maps an alias token to a target command name. When
// HasFixed is set, FixedArg replaces whatever arguments the player
// typed — this is how "n" always dispatches go "north".
type aliasEntry struct {
	Target   string
	FixedArg string
	HasFixed bool
}

// Resolved is a successful lookup: the command plus any fixed-argument
// override contributed by the alias that matched.
type Resolved struct {
	Cmd      *Command
	FixedArg string
	HasFixed bool
}

// Registry is the canonical table of invocable verbs. Names and
// aliases live in separate tables; Lookup consults names first, then
// aliases — that order is a tested contract, not an accident. All keys
// are lowercase; callers lowercase tokens before lookup.
//
// The registry is written only during construction and boot-time alias
// wiring, so steady-state lookups take no lock.
type Registry struct {
	names   map[string]*Command
	aliases map[string]aliasEntry
	order   []string // every token in registration order, for stable suggestions
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names:   make(map[string]*Command),
		aliases: make(map[string]aliasEntry),
	}
}

// Register installs a command under its lowercased name.
func (r *Registry) Register(cmd *Command) {
	key := strings.ToLower(cmd.Name)
	if _, exists := r.names[key]; !exists {
		r.order = append(r.order, key)
	}
	r.names[key] = cmd
}

// RegisterAlias installs an alias onto a target command name, with an
// optional fixed argument override. Re-registration silently
// overwrites. The target need not exist: a dangling alias is legal and
// simply fails to resolve until the target is registered.
func (r *Registry) RegisterAlias(alias, target string, fixedArg ...string) {
	key := strings.ToLower(alias)
	entry := aliasEntry{Target: strings.ToLower(target)}
	if len(fixedArg) > 0 {
		entry.FixedArg = fixedArg[0]
		entry.HasFixed = true
	}
	if _, exists := r.aliases[key]; !exists {
		r.order = append(r.order, key)
	}
	r.aliases[key] = entry
}

// Lookup resolves a lowercased token. Direct names are checked first,
// under the namespace rule: a restricted name resolves only with the @
// prefix, an ordinary name only without it — mismatches fail closed.
// The alias table is checked second; an alias resolves to whatever its
// target names, restriction notwithstanding (alias wiring is a
// deliberate registrar act), and a dangling target is a soft miss.
func (r *Registry) Lookup(token string) (Resolved, bool) {
	if strings.HasPrefix(token, NamespacePrefix) {
		if cmd, ok := r.names[token[len(NamespacePrefix):]]; ok && cmd.Restricted {
			return Resolved{Cmd: cmd}, true
		}
	} else if cmd, ok := r.names[token]; ok && !cmd.Restricted {
		return Resolved{Cmd: cmd}, true
	}

	if ae, ok := r.aliases[token]; ok {
		if cmd, ok := r.names[ae.Target]; ok {
			return Resolved{Cmd: cmd, FixedArg: ae.FixedArg, HasFixed: ae.HasFixed}, true
		}
	}

	return Resolved{}, false
}

// Get returns the command registered under a bare lowercased name,
// ignoring the namespace rule. Used by the dispatch internals (the
// direction fast-path needs the movement handler regardless of how the
// player spelled the token).
func (r *Registry) Get(name string) (*Command, bool) {
	cmd, ok := r.names[name]
	return cmd, ok
}

// NamespaceHint detects the two near-miss spellings the namespace rule
// refuses: a restricted name typed bare, or an ordinary name typed with
// the prefix. It returns the spelling that would have worked.
func (r *Registry) NamespaceHint(token string) (string, bool) {
	if strings.HasPrefix(token, NamespacePrefix) {
		bare := token[len(NamespacePrefix):]
		if cmd, ok := r.names[bare]; ok && !cmd.Restricted {
			return bare, true
		}
		return "", false
	}
	if cmd, ok := r.names[token]; ok && cmd.Restricted {
		return NamespacePrefix + token, true
	}
	return "", false
}

// Len returns the number of distinct registered tokens.
func (r *Registry) Len() int {
	return len(r.names) + len(r.aliases)
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.names))
	for _, key := range r.order {
		if cmd, ok := r.names[key]; ok {
			out = append(out, cmd)
		}
	}
	return out
}

// Aliases returns the alias tokens in registration order.
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.aliases))
	for _, key := range r.order {
		if _, ok := r.aliases[key]; ok {
			out = append(out, key)
		}
	}
	return out
}
