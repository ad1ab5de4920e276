package decl

import (
	"fmt"
	"regexp"
	"strings"

	generr "github.com/elijahmorgan/cowrap/internal/errors"
)

// ReturnKind is the shape of a wrapped function's result.
type ReturnKind int

const (
	// None is a function returning nothing.
	None ReturnKind = iota
	// Value is a function returning a single value.
	Value
)

func (k ReturnKind) String() string {
	if k == Value {
		return "value"
	}
	return "none"
}

// Function is one marked wrapper declaration.
type Function struct {
	Return     ReturnKind
	ReturnType string // return-kind token as written, e.g. "int"
	Name       string // wrapper name
	Params     []Param
	Line       int    // 1-based line in the scanned text
	Source     string // the declaration line
}

// Param is one parameter of a wrapper declaration.
type Param struct {
	Decl string // full declaration, e.g. "BlockDriverState *bs"
	Type string // type prefix, e.g. "BlockDriverState *"
	Name string // identifier, e.g. "bs"
}

// ArgsDecl returns the parameter list as declared.
func (f *Function) ArgsDecl() string {
	decls := make([]string, len(f.Params))
	for i, p := range f.Params {
		decls[i] = p.Decl
	}
	return strings.Join(decls, ", ")
}

// ArgNames returns the parameter names in declared order.
func (f *Function) ArgNames() []string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.Name
	}
	return names
}

// paramRe splits a fragment into the longest type prefix ending in a space
// or '*' and a lowercase identifier that runs to the end of the fragment.
var paramRe = regexp.MustCompile(`^(?P<type>.*[ *])(?P<name>[a-z][a-z0-9_]*)$`)

// ParseParam decomposes a single parameter fragment such as "int64_t offset".
func ParseParam(fragment string) (Param, error) {
	p, problem := parseParam(fragment)
	if problem != "" {
		return Param{}, generr.Format(generr.PhaseScan, "", "%s", problem)
	}
	return p, nil
}

// ParseParams splits a raw parameter list on commas and parses each
// fragment. Commas are not nesting-aware, so function pointer parameters
// are not supported.
func ParseParams(list string) ([]Param, error) {
	parts := strings.Split(list, ",")
	params := make([]Param, 0, len(parts))
	for i, part := range parts {
		p, problem := parseParam(part)
		if problem != "" {
			return nil, generr.Format(generr.PhaseScan, "", "parameter %d: %s", i+1, problem)
		}
		params = append(params, p)
	}
	return params, nil
}

func parseParam(fragment string) (Param, string) {
	fragment = strings.TrimSpace(fragment)

	m := paramRe.FindStringSubmatch(fragment)
	if m == nil {
		if fragment == "" {
			return Param{}, "empty parameter"
		}
		return Param{}, fmt.Sprintf("%q has no lowercase name after its type", fragment)
	}

	return Param{
		Decl: fragment,
		Type: m[paramRe.SubexpIndex("type")],
		Name: m[paramRe.SubexpIndex("name")],
	}, ""
}

// NormalizeType canonicalizes a C type fragment for comparison, so that
// "BlockDriverState *", "BlockDriverState*" and "BlockDriverState  * "
// compare equal.
func NormalizeType(t string) string {
	t = strings.Join(strings.Fields(t), " ")
	t = strings.ReplaceAll(t, " *", "*")
	return strings.ReplaceAll(t, "* ", "*")
}
