package bindgen

import "slices"

// MacroBehavior is a filter's verdict for one macro.
type MacroBehavior int

const (
	// Default processes the macro normally.
	Default MacroBehavior = iota
	// Ignore leaves the macro out of the generated interface.
	Ignore
)

func (b MacroBehavior) String() string {
	switch b {
	case Default:
		return "default"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// MacroFilter is consulted by a Parser once for every macro name it meets
// in the header closure, before the macro's value is looked at.
type MacroFilter interface {
	WillParseMacro(name string) MacroBehavior
}

// IgnoreMacros suppresses a fixed set of macro names. Use it for macros
// the host's own standard headers already define, such as FP_NAN from
// <math.h>; generating them again yields conflicting definitions.
type IgnoreMacros struct {
	names map[string]struct{}
}

// NewIgnoreMacros builds the set. Duplicate names collapse.
func NewIgnoreMacros(names ...string) IgnoreMacros {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return IgnoreMacros{names: set}
}

func (m IgnoreMacros) WillParseMacro(name string) MacroBehavior {
	if _, ok := m.names[name]; ok {
		return Ignore
	}
	return Default
}

// Names returns the suppressed names in sorted order.
func (m IgnoreMacros) Names() []string {
	names := make([]string, 0, len(m.names))
	for n := range m.names {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (m IgnoreMacros) Len() int { return len(m.names) }
