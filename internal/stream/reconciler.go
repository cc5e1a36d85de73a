// Package stream turns a server-sent-event token stream into a growing
// assistant message plus an optional structured edit action.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// event is one data line. Only choices[0].delta.content is used for text;
// edit_action carries a structured action outside the prose when the
// upstream provides it.
type event struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	EditAction json.RawMessage `json:"edit_action,omitempty"`
}

// Result is the outcome of a finished stream.
type Result struct {
	Text string
	// Action is the structured edit action, preferring one sent out-of-band
	// over one scraped from a fenced block in Text.
	Action *EditAction
	// ActionErr is the non-fatal reason a fenced block could not be used.
	ActionErr error
	// Dropped counts data lines that never parsed.
	Dropped int
}

// Reconciler consumes chunks in arrival order. It is not safe for
// concurrent use.
type Reconciler struct {
	logger  *slog.Logger
	onDelta func(delta string)

	buf      []byte
	text     strings.Builder
	done     bool
	finished bool
	dropped  int
	action   *EditAction
}

// NewReconciler returns a reconciler that calls onDelta after every text
// delta appended to the message. onDelta may be nil.
func NewReconciler(logger *slog.Logger, onDelta func(delta string)) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{logger: logger, onDelta: onDelta}
}

// Feed appends a chunk and processes every complete line in it. Data after
// the done sentinel is ignored.
func (r *Reconciler) Feed(chunk []byte) {
	if r.done || r.finished {
		return
	}
	r.buf = append(r.buf, chunk...)
	r.drain(false)
}

// drain processes complete lines. A data line that does not parse stays at
// the head of the buffer until more data arrives; if a later line is already
// complete by then, or the stream is final, the stuck line is dropped.
func (r *Reconciler) drain(final bool) {
	for !r.done {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			return
		}
		line := r.buf[:i]
		if !r.processLine(line) {
			if !final && bytes.IndexByte(r.buf[i+1:], '\n') < 0 {
				return
			}
			r.dropped++
			r.logger.Debug("dropping unparseable stream line", "line", truncate(string(line), 120))
		}
		r.buf = r.buf[i+1:]
	}
}

// processLine reports false only for a data line whose JSON did not parse.
func (r *Reconciler) processLine(raw []byte) bool {
	line := strings.TrimSuffix(string(raw), "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return true
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return true
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		r.done = true
		return true
	}

	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	if len(ev.EditAction) > 0 && r.action == nil {
		var action EditAction
		err := json.Unmarshal(ev.EditAction, &action)
		if err == nil {
			err = action.Validate()
		}
		if err != nil {
			r.logger.Warn("ignoring malformed structured edit action", "error", err)
		} else {
			r.action = &action
		}
	}
	if len(ev.Choices) > 0 {
		if delta := ev.Choices[0].Delta.Content; delta != "" {
			r.text.WriteString(delta)
			if r.onDelta != nil {
				r.onDelta(delta)
			}
		}
	}
	return true
}

// Finish flushes buffered lines, including a final line with no newline, and
// extracts the edit action. Calling it again returns the same result.
func (r *Reconciler) Finish() Result {
	if !r.finished {
		r.finished = true
		if !r.done && len(bytes.TrimSpace(r.buf)) > 0 {
			if r.buf[len(r.buf)-1] != '\n' {
				r.buf = append(r.buf, '\n')
			}
			r.drain(true)
		}
		r.buf = nil
	}

	res := Result{Text: r.text.String(), Dropped: r.dropped, Action: r.action}
	if res.Action == nil {
		action, ok, err := ExtractEditAction(res.Text)
		switch {
		case err != nil:
			res.ActionErr = err
		case ok:
			res.Action = &action
		}
	}
	return res
}

// Text is the assistant message accumulated so far.
func (r *Reconciler) Text() string {
	return r.text.String()
}

// Done reports whether the done sentinel has been seen.
func (r *Reconciler) Done() bool {
	return r.done
}

// Consume reads body in order until EOF or the done sentinel, feeding rec.
// After the sentinel the rest of the body is drained so the transport can
// reuse the connection.
func Consume(ctx context.Context, body io.Reader, rec *Reconciler) (Result, error) {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return rec.Finish(), err
		}
		n, err := body.Read(buf)
		if n > 0 {
			rec.Feed(buf[:n])
		}
		if rec.Done() {
			_, _ = io.Copy(io.Discard, body)
			return rec.Finish(), nil
		}
		if errors.Is(err, io.EOF) {
			return rec.Finish(), nil
		}
		if err != nil {
			return rec.Finish(), err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
