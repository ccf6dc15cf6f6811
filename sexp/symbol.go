package sexp

import (
	"strconv"
	"strings"
	"sync"
)

// Symbol is an interned name. Two symbols with the same name are the same
// pointer, so symbol comparison is pointer comparison.
type Symbol struct {
	name    string
	ddIndex int // n for a ..n symbol, otherwise 0
}

var (
	symMu  sync.Mutex
	symTab = map[string]*Symbol{}
)

// Install interns a symbol, returning the canonical *Symbol for the name.
func Install(name string) *Symbol {
	symMu.Lock()
	defer symMu.Unlock()
	if s, ok := symTab[name]; ok {
		return s
	}
	s := &Symbol{name: name, ddIndex: ddIndex(name)}
	symTab[name] = s
	return s
}

func ddIndex(name string) int {
	if !strings.HasPrefix(name, "..") || len(name) < 3 {
		return 0
	}
	n, err := strconv.Atoi(name[2:])
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func (s *Symbol) Kind() Kind     { return SymKind }
func (s *Symbol) String() string { return s.name }

// Name returns the symbol's print name.
func (s *Symbol) Name() string { return s.name }

// DDVal returns n for a ..n symbol, or 0 when the symbol is not a
// variadic-positional reference.
func (s *Symbol) DDVal() int { return s.ddIndex }

// Missing is the missing-argument sentinel. Like the host runtime's, it is a
// special uninterned symbol with an empty print name.
var Missing = &Symbol{name: ""}

// Unbound is the sentinel returned by environment lookups that find nothing.
var Unbound = &Symbol{name: "<unbound>"}

// Well-known symbols used by the compiler and interpreter.
var (
	DotsSym      = Install("...")
	QuoteSym     = Install("quote")
	ValueSym     = Install("value")
	ClassSym     = Install("class")
	NamesSym     = Install("names")
	FunctionSym  = Install("function")
	AssignSym    = Install("<-")
	Assign2Sym   = Install("=")
	AndSym       = Install("&&")
	OrSym        = Install("||")
	WhileSym     = Install("while")
	RepeatSym    = Install("repeat")
	ForSym       = Install("for")
	NextSym      = Install("next")
	BreakSym     = Install("break")
	IsNullSym    = Install("is.null")
	IsListSym    = Install("is.list")
	IsPairlstSym = Install("is.pairlist")
	BracketSym   = Install("[")
	Bracket2Sym  = Install("[[")
	InternalSym  = Install(".Internal")

	// Placeholders patched by the interpreter during complex assignment.
	GetterPlaceholder = Install("*tmp.getter*")
	SetterPlaceholder = Install("*tmp.setter*")
)
