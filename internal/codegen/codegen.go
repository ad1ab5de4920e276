package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elijahmorgan/cowrap/internal/decl"
	generr "github.com/elijahmorgan/cowrap/internal/errors"
	"github.com/elijahmorgan/cowrap/internal/naming"
	"github.com/elijahmorgan/cowrap/internal/project"
)

// Poll-state header members read and written by generated code.
const (
	fieldResult     = "ret"
	fieldInProgress = "in_progress"
	fieldCoroutine  = "co"
)

// indent is one level of generated C indentation
const indent = "    "

// Emitter renders wrappers for one configuration. It holds no state
// between calls, so emission is a pure function of the declaration.
type Emitter struct {
	cfg   project.Config
	rules naming.Rules
}

// New creates an Emitter for cfg.
func New(cfg project.Config) *Emitter {
	return &Emitter{
		cfg: cfg,
		rules: naming.Rules{
			WrapperPrefix:   cfg.Prefix.Wrapper,
			CoroutinePrefix: cfg.Prefix.Coroutine,
		},
	}
}

// Grammar returns the declaration grammar matching the emitter's config.
func (e *Emitter) Grammar() decl.Grammar {
	return decl.Grammar{
		Marker: e.cfg.Marker,
		None:   e.cfg.Returns.None,
		Value:  e.cfg.Returns.Value,
	}
}

// Preamble returns the fixed header emitted once before all wrappers. It
// does not end in a newline.
func (e *Emitter) Preamble() string {
	var sb strings.Builder

	sb.WriteString("/*\n")
	fmt.Fprintf(&sb, " * File is generated by %s\n", e.cfg.Header.Generator)
	sb.WriteString(" */\n")

	if len(e.cfg.Header.Includes) > 0 {
		sb.WriteString("\n")
	}
	for i, inc := range e.cfg.Header.Includes {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "#include \"%s\"", inc)
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// Target returns the C expression for the handle the poll loop waits on:
// the first parameter itself for a primary handle, or its owner for a
// child handle.
func (e *Emitter) Target(fn *decl.Function) (string, error) {
	if len(fn.Params) == 0 {
		return "", generr.Precondition(generr.PhaseEmit, fn.Name, "wrapper has no parameters").At(fn.Line, fn.Source)
	}

	first := fn.Params[0]
	switch decl.NormalizeType(first.Type) {
	case decl.NormalizeType(e.cfg.Handles.Primary):
		return first.Name, nil
	case decl.NormalizeType(e.cfg.Handles.Child):
		return first.Name + "->" + e.cfg.Handles.Owner, nil
	}

	return "", generr.Precondition(generr.PhaseEmit, fn.Name,
		"first parameter %q must be %q or %q", first.Decl, e.cfg.Handles.Primary, e.cfg.Handles.Child).At(fn.Line, fn.Source)
}

// Block renders the context struct, trampoline and wrapper for fn. The
// result starts with the banner comment and does not end in a newline.
func (e *Emitter) Block(fn *decl.Function) (string, error) {
	names, err := e.rules.Derive(fn.Name)
	if err != nil {
		var ge *generr.Error
		if errors.As(err, &ge) {
			return "", ge.At(fn.Line, fn.Source)
		}
		return "", err
	}

	target, err := e.Target(fn)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString("/*\n")
	fmt.Fprintf(&sb, " * Wrappers for %s\n", names.Coroutine)
	sb.WriteString(" */\n\n")

	e.writeStruct(&sb, fn, names)
	sb.WriteString("\n")
	e.writeEntry(&sb, fn, names)
	sb.WriteString("\n")
	e.writeWrapper(&sb, fn, names, target)

	return sb.String(), nil
}

// writeStruct emits the context struct: the poll-state header followed by
// one field per parameter, each with its declared type.
func (e *Emitter) writeStruct(sb *strings.Builder, fn *decl.Function, names naming.Names) {
	fmt.Fprintf(sb, "typedef struct %s {\n", names.Struct)
	fmt.Fprintf(sb, "%s%s %s;\n", indent, e.cfg.Runtime.PollState, e.cfg.Runtime.PollField)
	for _, p := range fn.Params {
		fmt.Fprintf(sb, "%s%s;\n", indent, p.Decl)
	}
	fmt.Fprintf(sb, "} %s;\n", names.Struct)
}

// writeEntry emits the trampoline the spawned coroutine runs.
func (e *Emitter) writeEntry(sb *strings.Builder, fn *decl.Function, names naming.Names) {
	rt := e.cfg.Runtime

	fnAttr := ""
	if rt.CoroutineFn != "" {
		fnAttr = rt.CoroutineFn + " "
	}

	fromStruct := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		fromStruct[i] = "s->" + p.Name
	}

	assign := ""
	if fn.Return == decl.Value {
		assign = fmt.Sprintf("s->%s.%s = ", rt.PollField, fieldResult)
	}

	fmt.Fprintf(sb, "static void %s%s(void *opaque)\n", fnAttr, names.Entry)
	sb.WriteString("{\n")
	fmt.Fprintf(sb, "%s%s *s = opaque;\n\n", indent, names.Struct)
	fmt.Fprintf(sb, "%s%s%s(%s);\n\n", indent, assign, names.Coroutine, strings.Join(fromStruct, ", "))
	fmt.Fprintf(sb, "%ss->%s.%s = false;\n\n", indent, rt.PollField, fieldInProgress)
	fmt.Fprintf(sb, "%s%s();\n", indent, rt.OnExit)
	sb.WriteString("}\n")
}

// writeWrapper emits the public function: a direct call when already in a
// coroutine, otherwise spawn the trampoline and poll until it finishes.
func (e *Emitter) writeWrapper(sb *strings.Builder, fn *decl.Function, names naming.Names, target string) {
	rt := e.cfg.Runtime
	in2 := indent + indent
	in3 := in2 + indent

	ret := ""
	if fn.Return == decl.Value {
		ret = "return "
	}

	args := strings.Join(fn.ArgNames(), ", ")

	fmt.Fprintf(sb, "%s %s(%s)\n", fn.ReturnType, fn.Name, fn.ArgsDecl())
	sb.WriteString("{\n")
	fmt.Fprintf(sb, "%sif (%s()) {\n", indent, rt.InCoroutine)
	fmt.Fprintf(sb, "%s%s%s(%s);\n", in2, ret, names.Coroutine, args)
	fmt.Fprintf(sb, "%s} else {\n", indent)
	fmt.Fprintf(sb, "%s%s s = {\n", in2, names.Struct)
	fmt.Fprintf(sb, "%s.%s.%s = %s,\n", in3, rt.PollField, rt.TargetField, target)
	fmt.Fprintf(sb, "%s.%s.%s = true,\n\n", in3, rt.PollField, fieldInProgress)
	for _, p := range fn.Params {
		fmt.Fprintf(sb, "%s.%s = %s,\n", in3, p.Name, p.Name)
	}
	fmt.Fprintf(sb, "%s};\n\n", in2)
	fmt.Fprintf(sb, "%ss.%s.%s = %s(%s, &s);\n\n", in2, rt.PollField, fieldCoroutine, rt.Create, names.Entry)
	fmt.Fprintf(sb, "%s%s%s(&s.%s);\n", in2, ret, rt.Poll, rt.PollField)
	fmt.Fprintf(sb, "%s}\n", indent)
	sb.WriteString("}")
}
