// Copyright © 2024 The ELPS authors

package analysis

// ScopeKind classifies the kind of scope.
type ScopeKind int

const (
	ScopeFrame    ScopeKind = iota // program scope at the breakpoint
	ScopeFragment                  // statements of the fragment
	ScopeInline                    // body of an inline function
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeFrame:
		return "frame"
	case ScopeFragment:
		return "fragment"
	case ScopeInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Scope represents a lexical scope.
type Scope struct {
	Kind     ScopeKind
	Parent   *Scope
	Children []*Scope
	Symbols  map[string]*Symbol
}

// NewScope creates a new scope of the given kind with the given parent.
func NewScope(kind ScopeKind, parent *Scope) *Scope {
	s := &Scope{
		Kind:    kind,
		Parent:  parent,
		Symbols: make(map[string]*Symbol),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Define adds a symbol to this scope.
func (s *Scope) Define(sym *Symbol) {
	sym.Scope = s
	s.Symbols[sym.Name] = sym
}

// Lookup resolves a symbol by walking the parent chain.
// Returns nil if the symbol is not found.
func (s *Scope) Lookup(name string) *Symbol {
	for scope := s; scope != nil; scope = scope.Parent {
		if sym, ok := scope.Symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// LookupLocal resolves a symbol only in this scope (not parents).
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.Symbols[name]
}
