package build

import (
	"cmp"
	"slices"

	"github.com/elijahmorgan/cowrap/internal/codegen"
	"github.com/elijahmorgan/cowrap/internal/decl"
	"github.com/elijahmorgan/cowrap/internal/project"
)

// Check reports every problem in src without stopping at the first one:
// scan errors, near-miss warnings, and declarations the emitter rejects.
// Diagnostics are ordered by line.
func Check(src []byte, cfg project.Config) []decl.Diagnostic {
	e := codegen.New(cfg)
	s := decl.NewScanner(string(src), e.Grammar())

	diags := s.Diagnose()
	for _, fn := range s.Declarations() {
		if _, err := e.Block(fn); err != nil {
			diags = append(diags, decl.Diagnostic{
				Line:     fn.Line,
				Severity: decl.SeverityError,
				Message:  err.Error(),
				Err:      err,
			})
		}
	}

	slices.SortStableFunc(diags, func(a, b decl.Diagnostic) int {
		return cmp.Compare(a.Line, b.Line)
	})
	return diags
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []decl.Diagnostic) bool {
	return slices.ContainsFunc(diags, func(d decl.Diagnostic) bool {
		return d.Severity == decl.SeverityError
	})
}
