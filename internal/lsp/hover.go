package lsp

import (
	"encoding/json"
	"strings"

	"github.com/elijahmorgan/cowrap/internal/decl"
	generr "github.com/elijahmorgan/cowrap/internal/errors"
)

type textDocumentPositionParams struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
	Position position `json:"position"`
}

// hover previews the code generated for the declaration under the cursor,
// or the reason it would fail to generate.
func (s *server) hover(msg message) error {
	var params textDocumentPositionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.conn.replyError(msg.ID, codeInvalidParams, "invalid params: %v", err)
	}

	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.conn.reply(msg.ID, nil)
	}

	e, err := emitterFor(doc.path)
	if err != nil {
		return s.conn.reply(msg.ID, nil)
	}

	fn := declarationAt(decl.NewScanner(doc.text, e.Grammar()).Declarations(), params.Position.Line+1)
	if fn == nil {
		return s.conn.reply(msg.ID, nil)
	}

	var b strings.Builder
	block, err := e.Block(fn)
	if err != nil {
		b.WriteString("**cannot generate `")
		b.WriteString(fn.Name)
		b.WriteString("`**\n\n")
		b.WriteString(generr.Snippet(err))
	} else {
		b.WriteString("```c\n")
		b.WriteString(block)
		b.WriteString("\n```")
	}

	return s.conn.reply(msg.ID, map[string]any{
		"contents": map[string]any{
			"kind":  "markdown",
			"value": b.String(),
		},
		"range": lineRange(fn.Line, fn.Source),
	})
}

func declarationAt(fns []*decl.Function, line1 int) *decl.Function {
	for _, fn := range fns {
		if fn.Line == line1 {
			return fn
		}
	}
	return nil
}
