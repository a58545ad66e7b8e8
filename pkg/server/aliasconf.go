package server

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// aliasFileEntry is one alias directive from the alias config file.
// Arg, when present, becomes a fixed argument override: the alias
// dispatches its target with that argument no matter what was typed.
// A present-but-empty arg is a real override (it blanks the arguments),
// which is why this is a pointer and not a plain string.
type aliasFileEntry struct {
	Alias  string  `yaml:"alias"`
	Target string  `yaml:"target"`
	Arg    *string `yaml:"arg"`
}

type aliasFile struct {
	Aliases []aliasFileEntry `yaml:"aliases"`
}

// LoadAliasFile reads a YAML alias file and registers its entries.
// Aliases to not-yet-registered targets are installed anyway; they
// resolve as soon as the target appears, and miss softly until then.
func LoadAliasFile(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var af aliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	count := 0
	for _, e := range af.Aliases {
		if e.Alias == "" || e.Target == "" {
			log.Printf("ALIAS: %s: skipping incomplete entry (alias=%q target=%q)", path, e.Alias, e.Target)
			continue
		}
		if _, ok := r.Get(strings.ToLower(e.Target)); !ok {
			log.Printf("ALIAS: %q -> %q: target not registered yet", e.Alias, e.Target)
		}
		if e.Arg != nil {
			r.RegisterAlias(e.Alias, e.Target, *e.Arg)
		} else {
			r.RegisterAlias(e.Alias, e.Target)
		}
		count++
	}
	log.Printf("ALIAS: %s: %d aliases registered", path, count)
	return nil
}
