// Package lsp serves generator diagnostics, wrapper previews and
// declaration symbols over the Language Server Protocol.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/elijahmorgan/cowrap/internal/build"
	"github.com/elijahmorgan/cowrap/internal/codegen"
	generr "github.com/elijahmorgan/cowrap/internal/errors"
	"github.com/elijahmorgan/cowrap/internal/logging"
	"github.com/elijahmorgan/cowrap/internal/project"
)

// document is an open text buffer.
type document struct {
	path string
	text string
}

type server struct {
	conn *conn

	initialized bool
	shutdown    bool

	mu   sync.Mutex
	docs map[string]document // uri -> document
}

// errExit ends Serve after the client's exit notification.
var errExit = errors.New("exit")

// Serve handles one client on in/out until the stream ends or the client
// sends exit.
func Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s := &server{
		conn: newConn(in, out),
		docs: make(map[string]document),
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.conn.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var rerr *rpcError
			if errors.As(err, &rerr) {
				if err := s.conn.write(message{Error: rerr}); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if msg.Method == "" {
			// responses to server-initiated requests; none are sent
			continue
		}

		if len(msg.ID) > 0 {
			err = s.handleRequest(msg)
		} else {
			err = s.handleNotification(msg)
		}
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *server) handleRequest(msg message) error {
	logging.Logger().Debug("request", zap.String("method", msg.Method))

	if !s.initialized && msg.Method != "initialize" {
		return s.conn.replyError(msg.ID, codeNotInitialized, "server not initialized")
	}

	switch msg.Method {
	case "initialize":
		s.initialized = true
		return s.conn.reply(msg.ID, map[string]any{
			"capabilities": map[string]any{
				"textDocumentSync": map[string]any{
					"openClose": true,
					"change":    1, // Full
				},
				"hoverProvider":          true,
				"documentSymbolProvider": true,
			},
			"serverInfo": map[string]any{
				"name":    "cowrap_lsp",
				"version": project.Version,
			},
		})

	case "shutdown":
		s.shutdown = true
		return s.conn.reply(msg.ID, nil)

	case "textDocument/hover":
		return s.hover(msg)

	case "textDocument/documentSymbol":
		return s.documentSymbols(msg)

	default:
		return s.conn.replyError(msg.ID, codeMethodNotFound, "method not found: %s", msg.Method)
	}
}

func (s *server) handleNotification(msg message) error {
	switch msg.Method {
	case "exit":
		return errExit

	case "textDocument/didOpen":
		var params struct {
			TextDocument struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"textDocument"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil
		}
		return s.update(params.TextDocument.URI, params.TextDocument.Text)

	case "textDocument/didChange":
		var params struct {
			TextDocument struct {
				URI string `json:"uri"`
			} `json:"textDocument"`
			ContentChanges []struct {
				Text string `json:"text"`
			} `json:"contentChanges"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params.ContentChanges) == 0 {
			return nil
		}
		// Full sync: the last change holds the whole text.
		return s.update(params.TextDocument.URI, params.ContentChanges[len(params.ContentChanges)-1].Text)

	case "textDocument/didClose":
		var params struct {
			TextDocument struct {
				URI string `json:"uri"`
			} `json:"textDocument"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil
		}
		s.mu.Lock()
		delete(s.docs, params.TextDocument.URI)
		s.mu.Unlock()
		return s.publishDiagnostics(params.TextDocument.URI, nil)
	}

	return nil
}

func (s *server) update(uri, text string) error {
	path, err := pathFromURI(uri)
	if err != nil {
		logging.Logger().Warn("ignoring document", zap.String("uri", uri), zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.docs[uri] = document{path: path, text: text}
	s.mu.Unlock()

	cfg, err := configFor(path)
	if err != nil {
		return s.publishDiagnostics(uri, []diagnostic{configDiagnostic(err)})
	}

	diags := build.Check([]byte(text), cfg)
	out := make([]diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, toDiagnostic(d, lineAt(text, d.Line)))
	}
	return s.publishDiagnostics(uri, out)
}

func (s *server) document(uri string) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// configFor returns the configuration governing path: the nearest
// cowrap.yaml above it, or the defaults when there is none.
func configFor(path string) (project.Config, error) {
	proj, err := project.Discover(filepath.Dir(path))
	if err != nil {
		if errors.Is(err, generr.ErrConfig) {
			return project.Config{}, err
		}
		return project.Default(), nil
	}
	return proj.Config, nil
}

func emitterFor(path string) (*codegen.Emitter, error) {
	cfg, err := configFor(path)
	if err != nil {
		return nil, err
	}
	return codegen.New(cfg), nil
}
