package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// JSON-RPC error codes used by the server.
const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeNotInitialized = -32002
)

// message is a JSON-RPC 2.0 envelope: a request, a response or a
// notification.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// conn frames messages with Content-Length headers over a byte stream.
type conn struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

func newConn(r io.Reader, w io.Writer) *conn {
	return &conn{
		r: bufio.NewReader(r),
		w: w,
	}
}

func (c *conn) read() (message, error) {
	var msg message

	contentLen := -1
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return msg, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			val = strings.TrimSpace(val)
			n, err := strconv.Atoi(val)
			if err != nil {
				return msg, fmt.Errorf("invalid Content-Length %q: %w", val, err)
			}
			contentLen = n
		}
	}

	if contentLen < 0 {
		return msg, fmt.Errorf("missing Content-Length header")
	}

	payload := make([]byte, contentLen)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return msg, err
	}

	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, &rpcError{Code: codeParseError, Message: fmt.Sprintf("invalid json-rpc payload: %v", err)}
	}
	return msg, nil
}

func (e *rpcError) Error() string {
	return e.Message
}

func (c *conn) write(msg message) error {
	msg.JSONRPC = "2.0"
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(b))
	buf.Write(b)
	_, err = c.w.Write(buf.Bytes())
	return err
}

func (c *conn) reply(id json.RawMessage, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.write(message{ID: id, Result: raw})
}

func (c *conn) replyError(id json.RawMessage, code int, format string, args ...any) error {
	return c.write(message{ID: id, Error: &rpcError{Code: code, Message: fmt.Sprintf(format, args...)}})
}

func (c *conn) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return c.write(message{Method: method, Params: raw})
}
