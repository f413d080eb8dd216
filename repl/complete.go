// Copyright © 2018 The ELPS authors

package repl

import (
	"sort"
	"strings"
)

var commands = []string{":backtrace", ":bt", ":frame", ":help", ":locals", ":quit", ":recompile", ":threads"}

// nameCompleter implements readline.AutoCompleter by enumerating the names
// visible in the lexical scope of the selected frame.
type nameCompleter struct {
	session *Session
}

func (c *nameCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 && isNameRune(line[start-1]) {
		start--
	}
	if start > 0 && line[start-1] == ':' && start == 1 {
		start--
	}
	prefix := string(line[start:pos])
	if prefix == "" {
		return nil, 0
	}
	candidates := c.names(prefix)
	if len(candidates) == 0 {
		return nil, 0
	}
	result := make([][]rune, 0, len(candidates))
	for _, name := range candidates {
		result = append(result, []rune(name[len(prefix):]))
	}
	return result, len(prefix)
}

func (c *nameCompleter) names(prefix string) []string {
	if strings.HasPrefix(prefix, ":") {
		return matching(commands, prefix)
	}
	f, ok := c.session.Frame()
	if !ok {
		return nil
	}
	scope := f.Scope()
	var names []string
	for _, l := range scope.Locals {
		names = append(names, l.Name)
	}
	if scope.This != nil {
		names = append(names, "this")
		for _, p := range scope.This.Properties {
			names = append(names, p.Name)
		}
	}
	for _, fn := range scope.Functions {
		names = append(names, fn.Name)
	}
	for _, fn := range scope.LocalFunctions {
		names = append(names, fn.Name)
	}
	for simple := range scope.Classes {
		names = append(names, simple)
	}
	return matching(names, prefix)
}

func matching(names []string, prefix string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

func isNameRune(ch rune) bool {
	return ch == '_' || ch == '$' ||
		('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}
