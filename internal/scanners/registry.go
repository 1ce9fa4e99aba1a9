package scanners

import (
	"fmt"
	"slices"
	"sort"

	"github.com/ASK1E/SASTRA/internal/runner"
	"github.com/ASK1E/SASTRA/internal/scanners/bandit"
	"github.com/ASK1E/SASTRA/internal/scanners/semgrep"
)

// Tool describes how to run one analysis tool and read its output. The
// argument vector is fixed apart from the workspace path and the operator
// supplied rules location.
type Tool struct {
	Name   string
	Binary string
	Image  string
	// Rules is the default rule set location. For containers it must point
	// inside the image: the sandbox has no network to fetch rules from.
	Rules          string
	Argv           func(rules, path string) []string
	Parser         Parser
	CleanExitCodes []int
}

// Command returns the argument builder for one configured rule set. An empty
// rules falls back to the tool default.
func (t Tool) Command(rules string) runner.ArgsFunc {
	if rules == "" {
		rules = t.Rules
	}
	return func(path string) []string {
		return t.Argv(rules, path)
	}
}

// IsClean reports whether code means the tool ran to completion without
// reporting anything.
func (t Tool) IsClean(code int) bool {
	return slices.Contains(t.CleanExitCodes, code)
}

var registry = map[string]Tool{
	"bandit": {
		Name:   "bandit",
		Binary: "bandit",
		Image:  "sastra/bandit:1.0",
		Argv: func(_, path string) []string {
			return []string{"--format", "json", "--quiet", "--", path}
		},
		Parser:         ParserFunc(bandit.Parse),
		CleanExitCodes: []int{0},
	},
	"semgrep": {
		Name:   "semgrep",
		Binary: "semgrep",
		Image:  "sastra/semgrep:1.0",
		Rules:  "/rules",
		Argv: func(rules, path string) []string {
			return []string{"scan", "--json", "--quiet", "--metrics=off", "--config", rules, "--", path}
		},
		Parser:         ParserFunc(semgrep.Parse),
		CleanExitCodes: []int{0},
	},
}

// Lookup returns the registered tool with the given name.
func Lookup(name string) (Tool, error) {
	tool, ok := registry[name]
	if !ok {
		return Tool{}, fmt.Errorf("unknown scanner %q (known: %v)", name, Names())
	}
	return tool, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
