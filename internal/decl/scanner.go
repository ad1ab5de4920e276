package decl

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	generr "github.com/elijahmorgan/cowrap/internal/errors"
)

// Grammar holds the tokens that make a line a wrapper declaration.
type Grammar struct {
	Marker string // e.g. "generated_co_wrapper"
	None   string // return-kind token for ReturnKind None, e.g. "void"
	Value  string // return-kind token for ReturnKind Value, e.g. "int"
}

// declLine is the shape of a marked line:
//
//	<return-kind> <marker> <name>(<params>);
//
// The parameter tokens are only checked for balance here; the raw text
// between the parentheses is handed to ParseParams.
type declLine struct {
	Return string   `@Ident`
	Marker string   `@Ident`
	Name   string   `@Ident`
	Params []string `"(" ( @~")" )* ")" ";"`
}

var (
	lineLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
		{Name: "Number", Pattern: `[0-9]+`},
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Punct", Pattern: `[^\sA-Za-z0-9_]`},
	})

	lineParser = participle.MustBuild[declLine](
		participle.Lexer(lineLexer),
		participle.Elide("Whitespace"),
	)

	nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Severity of a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

// Diagnostic is a problem found on one input line.
type Diagnostic struct {
	Line     int
	Severity Severity
	Message  string
	Err      error // set for SeverityError
}

// Scanner extracts wrapper declarations from text. It holds no iteration
// state, so every call to All starts again from the first line.
type Scanner struct {
	grammar Grammar
	lines   []string
}

// NewScanner creates a scanner over text.
func NewScanner(text string, g Grammar) *Scanner {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return &Scanner{grammar: g, lines: lines}
}

// All yields every declaration in input order. Lines that do not match the
// declaration grammar are skipped without comment. Iteration stops after
// the first error, which is a FormatError for an unparseable parameter list
// or a PreconditionViolation for a repeated wrapper name.
func (s *Scanner) All() iter.Seq2[*Function, error] {
	return func(yield func(*Function, error) bool) {
		seen := make(map[string]int)
		for i, line := range s.lines {
			fn, ok, err := s.match(i+1, line)
			if !ok {
				continue
			}
			if err == nil {
				err = checkUnique(seen, fn)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(fn, nil) {
				return
			}
		}
	}
}

// Scan collects All into a slice.
func (s *Scanner) Scan() ([]*Function, error) {
	var fns []*Function
	for fn, err := range s.All() {
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// Diagnose checks every line without stopping at the first error. Besides
// the errors All would report, it warns about lines that mention the marker
// but do not match the declaration grammar.
func (s *Scanner) Diagnose() []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]int)
	for i, line := range s.lines {
		fn, ok, err := s.match(i+1, line)
		if !ok {
			if reason := s.nearMiss(line); reason != "" {
				diags = append(diags, Diagnostic{
					Line:     i + 1,
					Severity: SeverityWarning,
					Message:  reason,
				})
			}
			continue
		}
		if err == nil {
			err = checkUnique(seen, fn)
		}
		if err != nil {
			diags = append(diags, Diagnostic{
				Line:     i + 1,
				Severity: SeverityError,
				Message:  err.Error(),
				Err:      err,
			})
		}
	}
	return diags
}

// Declarations returns every well-formed declaration, skipping lines that
// fail to parse and repeats of an earlier name. Tools that keep going past
// errors use it alongside Diagnose.
func (s *Scanner) Declarations() []*Function {
	var fns []*Function
	seen := make(map[string]int)
	for i, line := range s.lines {
		fn, ok, err := s.match(i+1, line)
		if !ok || err != nil || checkUnique(seen, fn) != nil {
			continue
		}
		fns = append(fns, fn)
	}
	return fns
}

// Line returns the 1-based input line n, or "" when out of range.
func (s *Scanner) Line(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return s.lines[n-1]
}

// match reports whether line is a declaration and, if so, parses it.
func (s *Scanner) match(lineNo int, line string) (*Function, bool, error) {
	if !strings.Contains(line, s.grammar.Marker) {
		return nil, false, nil
	}

	parsed, err := lineParser.ParseString("", line)
	if err != nil {
		return nil, false, nil
	}

	kind, ok := s.returnKind(parsed.Return)
	if !ok || parsed.Marker != s.grammar.Marker || !nameRe.MatchString(parsed.Name) {
		return nil, false, nil
	}

	// The grammar guarantees the first '(' opens the parameter list and
	// the last ')' closes it.
	raw := line[strings.IndexByte(line, '(')+1 : strings.LastIndexByte(line, ')')]

	params, err := ParseParams(raw)
	if err != nil {
		var e *generr.Error
		if !errors.As(err, &e) {
			return nil, true, err
		}
		e.Decl = parsed.Name
		return nil, true, e.At(lineNo, line)
	}

	return &Function{
		Return:     kind,
		ReturnType: parsed.Return,
		Name:       parsed.Name,
		Params:     params,
		Line:       lineNo,
		Source:     line,
	}, true, nil
}

func (s *Scanner) returnKind(tok string) (ReturnKind, bool) {
	switch tok {
	case s.grammar.None:
		return None, true
	case s.grammar.Value:
		return Value, true
	}
	return None, false
}

// nearMiss explains why a line mentioning the marker is not a declaration.
// Preprocessor lines and comments are never near misses.
func (s *Scanner) nearMiss(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.Contains(trimmed, s.grammar.Marker) ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*") {
		return ""
	}

	parsed, err := lineParser.ParseString("", line)
	if err != nil {
		return fmt.Sprintf("mentions %s but is not a one-line declaration `<return> %s <name>(<params>);`",
			s.grammar.Marker, s.grammar.Marker)
	}
	if _, ok := s.returnKind(parsed.Return); !ok {
		return fmt.Sprintf("return type %q is neither %q nor %q", parsed.Return, s.grammar.None, s.grammar.Value)
	}
	if parsed.Marker != s.grammar.Marker {
		return fmt.Sprintf("expected %s after the return type, found %q", s.grammar.Marker, parsed.Marker)
	}
	return fmt.Sprintf("wrapper name %q must be lowercase letters, digits and underscores", parsed.Name)
}

func checkUnique(seen map[string]int, fn *Function) error {
	if prev, dup := seen[fn.Name]; dup {
		return generr.Precondition(generr.PhaseScan, fn.Name, "wrapper already declared on line %d", prev).At(fn.Line, fn.Source)
	}
	seen[fn.Name] = fn.Line
	return nil
}
