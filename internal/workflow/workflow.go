// Package workflow implements the animation, enhancement and chat state
// machines of an editing session.
//
// Each workflow serialises its own mutations and carries an epoch counter.
// Operations that replace workflow-level results capture the epoch before
// calling out and discard the response if the epoch moved on in the
// meantime, so a Reset during an in-flight call is never clobbered.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/framecraft/studio/internal/gateway"
)

// Status is the coarse phase shared by all workflows.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusAnalyzing  Status = "analyzing"
	StatusReviewing  Status = "reviewing"
	StatusGenerating Status = "generating"
	StatusStreaming  Status = "streaming"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrSuperseded is returned when a reset or newer operation replaced the
// workflow state while a remote call was in flight. The result was dropped.
var ErrSuperseded = errors.New("superseded by a newer operation")

var ErrNotFound = errors.New("not found")

// ValidationError reports bad caller input. Nothing was changed and no remote
// call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// PreconditionError reports an operation invoked before the step it depends
// on succeeded. The workflow state is unchanged.
type PreconditionError struct {
	Op          string
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Requirement)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Failure is the error slot of a workflow state.
type Failure struct {
	Message   string           `json:"message"`
	Category  gateway.Category `json:"category"`
	Retryable bool             `json:"retryable"`
}

func failureFrom(err error) Failure {
	return Failure{
		Message:   gateway.UserMessage(err),
		Category:  gateway.CategoryOf(err),
		Retryable: gateway.Retryable(err),
	}
}

// Notifier fans state snapshots out to subscribers synchronously, in
// subscription order. Each snapshot carries the sequence number it was
// stamped with under the workflow lock; deliveries are serialised and a
// snapshot older than the last one delivered is dropped, so subscribers
// always end on the latest state.
type Notifier[S any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(S)

	deliver sync.Mutex
	last    uint64
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier[S]) Subscribe(fn func(S)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(S))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *Notifier[S]) publish(seq uint64, s S) {
	n.deliver.Lock()
	defer n.deliver.Unlock()
	if seq <= n.last {
		return
	}
	n.last = seq

	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(S), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func logTransition(logger *slog.Logger, from, to Status, attrs ...any) {
	if from == to {
		return
	}
	logger.Info("workflow transition", append([]any{"from", string(from), "to", string(to)}, attrs...)...)
}
