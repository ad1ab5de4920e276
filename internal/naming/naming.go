// Package naming derives every generated identifier from a wrapper name.
package naming

import (
	"strings"

	generr "github.com/elijahmorgan/cowrap/internal/errors"
)

// Rules maps wrapper names to coroutine implementation names by prefix
// substitution.
type Rules struct {
	WrapperPrefix   string // e.g. "bdrv_"
	CoroutinePrefix string // e.g. "bdrv_co_"
}

// Names are the identifiers generated for one wrapper.
type Names struct {
	Wrapper   string // public wrapper, e.g. bdrv_foo
	Coroutine string // coroutine implementation, e.g. bdrv_co_foo
	Struct    string // context struct type, e.g. BdrvCoFoo
	Entry     string // trampoline, e.g. bdrv_co_foo_entry
}

// Derive computes the names for wrapper. A wrapper name without the wrapper
// prefix, or with nothing after it, is a PreconditionViolation.
func (r Rules) Derive(wrapper string) (Names, error) {
	rest, ok := strings.CutPrefix(wrapper, r.WrapperPrefix)
	if !ok {
		return Names{}, generr.Precondition(generr.PhaseDerive, wrapper, "wrapper name must start with %q", r.WrapperPrefix)
	}
	if rest == "" {
		return Names{}, generr.Precondition(generr.PhaseDerive, wrapper, "wrapper name has nothing after %q", r.WrapperPrefix)
	}

	co := r.CoroutinePrefix + rest
	return Names{
		Wrapper:   wrapper,
		Coroutine: co,
		Struct:    StructName(co),
		Entry:     co + "_entry",
	}, nil
}

// StructName converts some_function_name to SomeFunctionName. Empty
// segments from doubled underscores are dropped.
func StructName(name string) string {
	var b strings.Builder
	for _, word := range strings.Split(name, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String()
}
