package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrClosed は接続が閉じられた後の呼び出しで返る
var ErrClosed = errors.New("lsp connection closed")

// ResponseError は JSON-RPC のエラー応答
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

type response struct {
	result json.RawMessage
	err    error
}

// conn は Content-Length ヘッダで区切られた JSON-RPC 2.0 の送受信を行う
type conn struct {
	w      io.WriteCloser
	wmu    sync.Mutex
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan response
	closed  bool

	done   chan struct{}
	logger *slog.Logger
}

func newConn(r io.Reader, w io.WriteCloser, logger *slog.Logger) *conn {
	c := &conn{
		w:       w,
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

// call はリクエストを送り、同じIDの応答を待つ
func (c *conn) call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(message{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if result == nil || len(resp.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

// notify は応答を待たない通知を送る
func (c *conn) notify(method string, params any) error {
	return c.write(message{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *conn) write(msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Method, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := c.w.Write(body); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	return nil
}

func (c *conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) readLoop(r *bufio.Reader) {
	defer close(c.done)

	var loopErr error
	for {
		body, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				loopErr = err
			}
			break
		}

		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Warn("invalid lsp message", "error", err)
			continue
		}
		if msg.ID == nil || msg.Method != "" {
			// サーバからの通知とリクエストは扱わない
			c.logger.Debug("lsp server message ignored", "method", msg.Method)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if !ok {
			continue
		}

		if msg.Error != nil {
			ch <- response{err: msg.Error}
		} else {
			ch <- response{result: msg.Result}
		}
	}

	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		if loopErr != nil {
			ch <- response{err: fmt.Errorf("%w: %v", ErrClosed, loopErr)}
		} else {
			ch <- response{err: ErrClosed}
		}
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// closeWrite は送信側を閉じる
func (c *conn) closeWrite() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.Close()
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length %q: %w", value, err)
			}
			length = n
		}
	}
	if length < 0 {
		return nil, errors.New("missing Content-Length header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
