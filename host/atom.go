package host

import (
	"fmt"
	"strconv"

	"go.bytecodealliance.org/wit"
)

// AtomType identifies the value carried by an Atom.
type AtomType uint8

const (
	AtomLong AtomType = iota + 1
	AtomFloat
	AtomSymbol
)

func (t AtomType) String() string {
	switch t {
	case AtomLong:
		return "long"
	case AtomFloat:
		return "float"
	case AtomSymbol:
		return "symbol"
	default:
		return "none"
	}
}

// Atom is one message argument.
type Atom struct {
	Type  AtomType
	Long  int64
	Float float64
	Sym   Symbol
}

// Long returns a long atom.
func Long(v int64) Atom { return Atom{Type: AtomLong, Long: v} }

// Float returns a float atom.
func Float(v float64) Atom { return Atom{Type: AtomFloat, Float: v} }

// Sym returns a symbol atom.
func Sym(s Symbol) Atom { return Atom{Type: AtomSymbol, Sym: s} }

// String renders the atom without resolving symbol text.
func (a Atom) String() string {
	switch a.Type {
	case AtomLong:
		return strconv.FormatInt(a.Long, 10)
	case AtomFloat:
		return strconv.FormatFloat(a.Float, 'g', -1, 64)
	case AtomSymbol:
		return fmt.Sprintf("sym@0x%x", uint32(a.Sym))
	default:
		return "<none>"
	}
}

// ArgType declares the type of one method argument.
type ArgType uint8

const (
	ArgLong ArgType = iota + 1
	ArgFloat
	ArgSymbol
	// ArgRest takes every remaining atom as-is. Only valid last.
	ArgRest
)

func (t ArgType) String() string {
	switch t {
	case ArgLong:
		return "long"
	case ArgFloat:
		return "float"
	case ArgSymbol:
		return "symbol"
	case ArgRest:
		return "rest"
	default:
		return "invalid"
	}
}

// WIT returns the WIT type used to describe the argument.
func (t ArgType) WIT() wit.Type {
	switch t {
	case ArgLong:
		return wit.S64{}
	case ArgFloat:
		return wit.F64{}
	case ArgSymbol:
		return wit.String{}
	case ArgRest:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}
	default:
		return nil
	}
}
