package lsp

import (
	"encoding/json"
	"strings"

	"github.com/elijahmorgan/cowrap/internal/decl"
	"github.com/elijahmorgan/cowrap/internal/naming"
)

// LSP SymbolKind for functions.
const symbolKindFunction = 12

type documentSymbol struct {
	Name           string   `json:"name"`
	Detail         string   `json:"detail,omitempty"`
	Kind           int      `json:"kind"`
	Range          lspRange `json:"range"`
	SelectionRange lspRange `json:"selectionRange"`
}

// documentSymbols lists the wrapper declarations of a document. The detail
// names the coroutine implementation each wrapper calls.
func (s *server) documentSymbols(msg message) error {
	var params struct {
		TextDocument struct {
			URI string `json:"uri"`
		} `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.conn.replyError(msg.ID, codeInvalidParams, "invalid params: %v", err)
	}

	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.conn.reply(msg.ID, []documentSymbol{})
	}

	cfg, err := configFor(doc.path)
	if err != nil {
		return s.conn.reply(msg.ID, []documentSymbol{})
	}

	rules := naming.Rules{WrapperPrefix: cfg.Prefix.Wrapper, CoroutinePrefix: cfg.Prefix.Coroutine}
	grammar := decl.Grammar{Marker: cfg.Marker, None: cfg.Returns.None, Value: cfg.Returns.Value}

	syms := []documentSymbol{}
	for _, fn := range decl.NewScanner(doc.text, grammar).Declarations() {
		sym := documentSymbol{
			Name:           fn.Name,
			Kind:           symbolKindFunction,
			Range:          lineRange(fn.Line, fn.Source),
			SelectionRange: nameRange(fn),
		}
		if names, err := rules.Derive(fn.Name); err == nil {
			sym.Detail = names.Coroutine
		}
		syms = append(syms, sym)
	}
	return s.conn.reply(msg.ID, syms)
}

// nameRange spans the wrapper name within its declaration line.
func nameRange(fn *decl.Function) lspRange {
	line0 := fn.Line - 1
	idx := -1
	if paren := strings.IndexByte(fn.Source, '('); paren >= 0 {
		idx = strings.LastIndex(fn.Source[:paren], fn.Name)
	}
	if idx < 0 {
		return lineRange(fn.Line, fn.Source)
	}
	start := utf16Len(fn.Source[:idx])
	return lspRange{
		Start: position{Line: line0, Character: start},
		End:   position{Line: line0, Character: start + utf16Len(fn.Name)},
	}
}
