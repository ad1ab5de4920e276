package lsp

import (
	"strings"
	"unicode/utf8"

	"github.com/elijahmorgan/cowrap/internal/decl"
)

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type diagnostic struct {
	Range    lspRange `json:"range"`
	Severity int      `json:"severity"`
	Source   string   `json:"source"`
	Message  string   `json:"message"`
}

// LSP DiagnosticSeverity values.
const (
	severityError   = 1
	severityWarning = 2
)

// lineRange spans the text of a 1-based line, in UTF-16 code units as the
// protocol counts them.
func lineRange(line1 int, text string) lspRange {
	line0 := max(line1-1, 0)
	return lspRange{
		Start: position{Line: line0},
		End:   position{Line: line0, Character: utf16Len(text)},
	}
}

func toDiagnostic(d decl.Diagnostic, text string) diagnostic {
	sev := severityWarning
	if d.Severity == decl.SeverityError {
		sev = severityError
	}
	return diagnostic{
		Range:    lineRange(d.Line, text),
		Severity: sev,
		Source:   "cowrap",
		Message:  d.Message,
	}
}

func configDiagnostic(err error) diagnostic {
	return diagnostic{
		Range:    lineRange(1, ""),
		Severity: severityError,
		Source:   "cowrap",
		Message:  err.Error(),
	}
}

func (s *server) publishDiagnostics(uri string, diags []diagnostic) error {
	if diags == nil {
		diags = []diagnostic{}
	}
	return s.conn.notify("textDocument/publishDiagnostics", map[string]any{
		"uri":         uri,
		"diagnostics": diags,
	})
}

// lineAt returns the 1-based line n of text without its line ending.
func lineAt(text string, n int) string {
	for i := 1; i < n; i++ {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			return ""
		}
		text = text[nl+1:]
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[:nl]
	}
	return strings.TrimRight(text, "\r")
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if utf8.RuneLen(r) == 4 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
