package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/framecraft/studio/internal/editor"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/timeline"
)

type EnhancementType string

const (
	TypeVisual    EnhancementType = "visual"
	TypeSFX       EnhancementType = "sfx"
	TypeGraphic   EnhancementType = "graphic"
	TypeAnimation EnhancementType = "animation"
)

// EnhancementTypes lists every type in track order.
var EnhancementTypes = []EnhancementType{TypeVisual, TypeSFX, TypeGraphic, TypeAnimation}

func ParseEnhancementType(s string) (EnhancementType, bool) {
	t := EnhancementType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range EnhancementTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

type ItemStatus string

const (
	ItemSuggested  ItemStatus = "suggested"
	ItemApproved   ItemStatus = "approved"
	ItemRejected   ItemStatus = "rejected"
	ItemGenerating ItemStatus = "generating"
	ItemReady      ItemStatus = "ready"
	ItemError      ItemStatus = "error"
)

// Content is the generated asset of an enhancement.
type Content struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// Enhancement is a suggested or generated overlay tied to a time range.
// Duration always equals EndTime - StartTime.
type Enhancement struct {
	ID          string            `json:"id"`
	Type        EnhancementType   `json:"type"`
	Status      ItemStatus        `json:"status"`
	StartTime   float64           `json:"startTime"`
	EndTime     float64           `json:"endTime"`
	Duration    float64           `json:"duration"`
	Description string            `json:"description"`
	TriggerText string            `json:"triggerText,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Confidence  float64           `json:"confidence"`
	Prompt      string            `json:"prompt,omitempty"`
	Position    *gateway.Position `json:"position,omitempty"`
	Content     *Content          `json:"content,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (e *Enhancement) setRange(start, end float64) {
	e.StartTime = start
	e.EndTime = end
	e.Duration = end - start
}

func (e Enhancement) prompt() string {
	if e.Prompt != "" {
		return e.Prompt
	}
	return e.Description
}

// EnhancementState is one of EnhIdle, EnhAnalyzing, EnhReviewing,
// EnhGenerating, EnhComplete or EnhFailed.
type EnhancementState interface {
	Status() Status
	enhancementState()
}

type EnhIdle struct{}
type EnhAnalyzing struct{}
type EnhReviewing struct{}

// EnhGenerating is a batch in flight.
type EnhGenerating struct {
	Done  int
	Total int
}

type EnhComplete struct {
	Result BatchResult
}

type EnhFailed struct {
	Failure
}

func (EnhIdle) Status() Status       { return StatusIdle }
func (EnhAnalyzing) Status() Status  { return StatusAnalyzing }
func (EnhReviewing) Status() Status  { return StatusReviewing }
func (EnhGenerating) Status() Status { return StatusGenerating }
func (EnhComplete) Status() Status   { return StatusComplete }
func (EnhFailed) Status() Status     { return StatusError }

func (EnhIdle) enhancementState()       {}
func (EnhAnalyzing) enhancementState()  {}
func (EnhReviewing) enhancementState()  {}
func (EnhGenerating) enhancementState() {}
func (EnhComplete) enhancementState()   {}
func (EnhFailed) enhancementState()     {}

// BatchResult summarises GenerateApproved. Attempted counts generation
// calls made; items removed or reset while queued are listed in Skipped.
type BatchResult struct {
	Attempted int      `json:"attempted"`
	Completed int      `json:"completed"`
	Failed    []string `json:"failed,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}

func (r BatchResult) Summary() string {
	return fmt.Sprintf("Generated %d of %d enhancements", r.Completed, r.Attempted)
}

// EnhancementGateway is what the enhancement workflow needs from the remote
// side.
type EnhancementGateway interface {
	AnalyzeEnhancements(ctx context.Context, req gateway.EnhancementRequest) (*gateway.EnhancementAnalysis, error)
	GenerateImage(ctx context.Context, req gateway.ImageRequest) (*gateway.ImageResult, error)
	GenerateSFX(ctx context.Context, req gateway.SFXRequest) (*gateway.SFXResult, error)
}

type EnhancementSnapshot struct {
	Status     Status        `json:"status"`
	Progress   int           `json:"progress"`
	Items      []Enhancement `json:"items"`
	Summary    string        `json:"summary,omitempty"`
	VideoStyle string        `json:"videoStyle,omitempty"`
	Density    string        `json:"density,omitempty"`
	Result     *BatchResult  `json:"result,omitempty"`
	Error      *Failure      `json:"error,omitempty"`
	Epoch      uint64        `json:"epoch"`
	Seq        uint64        `json:"seq"`
}

// Enhancements is the analyze → review → generate workflow. Generation is
// per item: one failure never aborts the rest of a batch.
type Enhancements struct {
	mu       sync.Mutex
	gw       EnhancementGateway
	duration func() float64
	logger   *slog.Logger
	notifier Notifier[EnhancementSnapshot]

	epoch uint64
	seq   uint64
	state EnhancementState
	items []Enhancement

	summary    string
	videoStyle string
	density    string
}

func NewEnhancements(gw EnhancementGateway, duration func() float64, logger *slog.Logger) *Enhancements {
	if duration == nil {
		duration = func() float64 { return 0 }
	}
	return &Enhancements{
		gw:       gw,
		duration: duration,
		logger:   logger.With("workflow", "enhancement"),
		state:    EnhIdle{},
	}
}

func (w *Enhancements) Subscribe(fn func(EnhancementSnapshot)) func() {
	return w.notifier.Subscribe(fn)
}

func (w *Enhancements) State() EnhancementState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Enhancements) Snapshot() EnhancementSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Enhancements) snapshotLocked() EnhancementSnapshot {
	snap := EnhancementSnapshot{
		Status:     w.state.Status(),
		Items:      append([]Enhancement(nil), w.items...),
		Summary:    w.summary,
		VideoStyle: w.videoStyle,
		Density:    w.density,
		Epoch:      w.epoch,
		Seq:        w.seq,
	}
	switch st := w.state.(type) {
	case EnhIdle:
		snap.Progress = 0
	case EnhAnalyzing:
		snap.Progress = 25
	case EnhReviewing:
		snap.Progress = 50
	case EnhGenerating:
		snap.Progress = 50
		if st.Total > 0 {
			snap.Progress += st.Done * 50 / st.Total
		}
	case EnhComplete:
		snap.Progress = 100
		r := st.Result
		snap.Result = &r
	case EnhFailed:
		f := st.Failure
		snap.Error = &f
	}
	return snap
}

// Items returns a copy of every enhancement.
func (w *Enhancements) Items() []Enhancement {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Enhancement(nil), w.items...)
}

func (w *Enhancements) Item(id string) (Enhancement, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.indexLocked(id); i >= 0 {
		return w.items[i], true
	}
	return Enhancement{}, false
}

func (w *Enhancements) indexLocked(id string) int {
	for i := range w.items {
		if w.items[i].ID == id {
			return i
		}
	}
	return -1
}

// transitionAndUnlock must be called with mu held. A nil next keeps the
// current state and only publishes.
func (w *Enhancements) transitionAndUnlock(next EnhancementState) {
	from := w.state.Status()
	if next != nil {
		w.state = next
	}
	to := w.state.Status()
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	logTransition(w.logger, from, to)
	w.notifier.publish(snap.Seq, snap)
}

// Analyze replaces all enhancements with fresh suggestions.
func (w *Enhancements) Analyze(ctx context.Context, req gateway.EnhancementRequest) (*gateway.EnhancementAnalysis, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, &ValidationError{Field: "transcript", Message: "a transcript is required"}
	}
	if req.Duration <= 0 {
		req.Duration = w.duration()
	}

	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	w.transitionAndUnlock(EnhAnalyzing{})

	res, err := w.gw.AnalyzeEnhancements(ctx, req)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.logger.Warn("discarding stale enhancement analysis", "epoch", epoch)
		return nil, ErrSuperseded
	}
	if err != nil {
		w.logger.Error("enhancement analysis failed", "error", err)
		w.transitionAndUnlock(EnhFailed{Failure: failureFrom(err)})
		return nil, fmt.Errorf("analyze enhancements: %w", err)
	}

	w.items = w.fromSuggestions(res.Suggestions, req.Duration)
	w.summary = res.Summary
	w.videoStyle = res.VideoStyle
	w.density = res.Density
	w.logger.Info("enhancements suggested", "count", len(w.items), "received", len(res.Suggestions))
	w.transitionAndUnlock(EnhReviewing{})
	return res, nil
}

// fromSuggestions converts suggestions to enhancements, dropping unknown
// types and ranges that are empty once clamped to the media.
func (w *Enhancements) fromSuggestions(suggestions []gateway.EnhancementSuggestion, duration float64) []Enhancement {
	items := make([]Enhancement, 0, len(suggestions))
	for _, s := range suggestions {
		typ, ok := ParseEnhancementType(s.Type)
		if !ok {
			w.logger.Warn("dropping suggestion with unknown type", "type", s.Type)
			continue
		}
		start := math.Max(s.StartTime, 0)
		end := s.EndTime
		if duration > 0 {
			end = math.Min(end, duration)
		}
		if end <= start {
			w.logger.Warn("dropping suggestion with empty range", "start", s.StartTime, "end", s.EndTime)
			continue
		}
		e := Enhancement{
			ID:          uuid.NewString(),
			Type:        typ,
			Status:      ItemSuggested,
			Description: s.Description,
			TriggerText: s.TriggerText,
			Reason:      s.Reason,
			Confidence:  math.Min(math.Max(s.Confidence, 0), 1),
			Prompt:      s.Prompt,
		}
		e.setRange(start, end)
		items = append(items, e)
	}
	return items
}

// Draft is an enhancement to be added outside analysis.
type Draft struct {
	Type        EnhancementType
	Start       float64
	End         float64
	Description string
}

// Add appends an enhancement created outside analysis, such as one proposed
// in chat. It starts as suggested.
func (w *Enhancements) Add(typ EnhancementType, start, end float64, description string) (Enhancement, error) {
	added, err := w.AddAll([]Draft{{Type: typ, Start: start, End: end, Description: description}})
	if err != nil {
		return Enhancement{}, err
	}
	return added[0], nil
}

// AddAll validates every draft before adding any of them, so either all
// are added or none are.
func (w *Enhancements) AddAll(drafts []Draft) ([]Enhancement, error) {
	for _, d := range drafts {
		if err := w.validateRange(d.Start, d.End); err != nil {
			return nil, err
		}
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	added := make([]Enhancement, 0, len(drafts))
	for _, d := range drafts {
		e := Enhancement{
			ID:          uuid.NewString(),
			Type:        d.Type,
			Status:      ItemSuggested,
			Description: d.Description,
			Confidence:  1,
		}
		e.setRange(d.Start, d.End)
		added = append(added, e)
	}

	w.mu.Lock()
	w.items = append(w.items, added...)
	if _, idle := w.state.(EnhIdle); idle {
		w.transitionAndUnlock(EnhReviewing{})
	} else {
		w.transitionAndUnlock(nil)
	}
	return added, nil
}

func (w *Enhancements) validateRange(start, end float64) error {
	if start < 0 || end <= start {
		return &ValidationError{Field: "range", Message: fmt.Sprintf("need 0 <= start < end, got [%v, %v]", start, end)}
	}
	if d := w.duration(); d > 0 && end > d {
		return &ValidationError{Field: "range", Message: fmt.Sprintf("end %v is past the media duration %v", end, d)}
	}
	return nil
}

// mutate applies fn to one item and publishes the change.
func (w *Enhancements) mutate(id string, fn func(e *Enhancement) error) error {
	w.mu.Lock()
	i := w.indexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return notFound("enhancement", id)
	}
	if err := fn(&w.items[i]); err != nil {
		w.mu.Unlock()
		return err
	}
	w.transitionAndUnlock(nil)
	return nil
}

// Approve marks an item for generation. Ready items stay ready.
func (w *Enhancements) Approve(id string) error {
	return w.mutate(id, func(e *Enhancement) error {
		switch e.Status {
		case ItemGenerating:
			return &PreconditionError{Op: "approve enhancement", Requirement: "generation is in progress"}
		case ItemReady:
			return nil
		}
		e.Status = ItemApproved
		e.Error = ""
		return nil
	})
}

func (w *Enhancements) Reject(id string) error {
	return w.mutate(id, func(e *Enhancement) error {
		if e.Status == ItemGenerating {
			return &PreconditionError{Op: "reject enhancement", Requirement: "generation is in progress"}
		}
		e.Status = ItemRejected
		return nil
	})
}

// ApproveAll approves every suggested item.
func (w *Enhancements) ApproveAll() int {
	w.mu.Lock()
	n := 0
	for i := range w.items {
		if w.items[i].Status == ItemSuggested {
			w.items[i].Status = ItemApproved
			n++
		}
	}
	w.transitionAndUnlock(nil)
	return n
}

// Remove deletes an item at any status. A generation in flight for it is
// discarded when it returns.
func (w *Enhancements) Remove(id string) error {
	w.mu.Lock()
	i := w.indexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return notFound("enhancement", id)
	}
	w.items = append(w.items[:i], w.items[i+1:]...)
	w.transitionAndUnlock(nil)
	return nil
}

// Retime moves an item to [start, end] at any status.
func (w *Enhancements) Retime(id string, start, end float64) error {
	if err := w.validateRange(start, end); err != nil {
		return err
	}
	return w.mutate(id, func(e *Enhancement) error {
		e.setRange(start, end)
		return nil
	})
}

// Reposition places an item on screen. X and Y are fractions of the frame.
func (w *Enhancements) Reposition(id string, pos gateway.Position) error {
	if pos.X < 0 || pos.X > 1 || pos.Y < 0 || pos.Y > 1 {
		return &ValidationError{Field: "position", Message: "x and y must be within [0, 1]"}
	}
	if pos.Scale < 0 {
		return &ValidationError{Field: "position", Message: "scale must not be negative"}
	}
	if pos.Scale == 0 {
		pos.Scale = 1
	}
	return w.mutate(id, func(e *Enhancement) error {
		e.Position = &pos
		return nil
	})
}

// Clip implements editor.ClipStore.
func (w *Enhancements) Clip(id string) (editor.Clip, bool) {
	e, ok := w.Item(id)
	if !ok {
		return editor.Clip{}, false
	}
	return editor.Clip{ID: e.ID, Track: string(e.Type), Start: e.StartTime, End: e.EndTime}, true
}

// SetRange implements editor.ClipStore.
func (w *Enhancements) SetRange(id string, r timeline.Range) error {
	return w.Retime(id, r.Start, r.End)
}

// Clips lists every non-rejected item as an editor clip.
func (w *Enhancements) Clips() []editor.Clip {
	w.mu.Lock()
	defer w.mu.Unlock()
	clips := make([]editor.Clip, 0, len(w.items))
	for _, e := range w.items {
		if e.Status == ItemRejected {
			continue
		}
		clips = append(clips, editor.Clip{ID: e.ID, Track: string(e.Type), Start: e.StartTime, End: e.EndTime})
	}
	return clips
}

// GenerateApproved generates every approved item in order. A failing item
// is marked error and the batch moves on; the call itself only fails when
// nothing is approved or the batch is superseded.
func (w *Enhancements) GenerateApproved(ctx context.Context) (BatchResult, error) {
	w.mu.Lock()
	var ids []string
	for i := range w.items {
		if w.items[i].Status == ItemApproved {
			w.items[i].Status = ItemGenerating
			w.items[i].Error = ""
			ids = append(ids, w.items[i].ID)
		}
	}
	if len(ids) == 0 {
		w.mu.Unlock()
		return BatchResult{}, &PreconditionError{Op: "generate enhancements", Requirement: "no approved enhancements"}
	}
	epoch := w.epoch
	w.transitionAndUnlock(EnhGenerating{Total: len(ids)})

	var result BatchResult
	for n, id := range ids {
		item, ok := w.Item(id)
		if !ok || item.Status != ItemGenerating {
			// Removed or reset while queued.
			result.Skipped = append(result.Skipped, id)
			continue
		}

		result.Attempted++
		content, err := w.generate(ctx, item)

		w.mu.Lock()
		if w.epoch != epoch {
			w.mu.Unlock()
			w.logger.Warn("discarding stale enhancement batch", "epoch", epoch, "done", n)
			return result, ErrSuperseded
		}
		if !w.finishItemLocked(id, content, err) {
			result.Failed = append(result.Failed, id)
		} else {
			result.Completed++
		}
		w.transitionAndUnlock(EnhGenerating{Done: n + 1, Total: len(ids)})
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return result, ErrSuperseded
	}
	w.logger.Info("enhancement batch finished",
		"attempted", result.Attempted,
		"completed", result.Completed,
		"failed", len(result.Failed),
		"skipped", len(result.Skipped),
	)
	w.transitionAndUnlock(EnhComplete{Result: result})
	return result, nil
}

// Regenerate re-runs generation for a single approved, ready or failed item
// and returns that item's error, if any.
func (w *Enhancements) Regenerate(ctx context.Context, id string) (Enhancement, error) {
	var item Enhancement
	err := w.mutate(id, func(e *Enhancement) error {
		switch e.Status {
		case ItemApproved, ItemReady, ItemError:
		default:
			return &PreconditionError{Op: "regenerate enhancement", Requirement: fmt.Sprintf("item is %s", e.Status)}
		}
		e.Status = ItemGenerating
		e.Error = ""
		item = *e
		return nil
	})
	if err != nil {
		return Enhancement{}, err
	}
	w.mu.Lock()
	epoch := w.epoch
	w.mu.Unlock()

	content, genErr := w.generate(ctx, item)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return Enhancement{}, ErrSuperseded
	}
	w.finishItemLocked(id, content, genErr)
	updated := Enhancement{}
	if i := w.indexLocked(id); i >= 0 {
		updated = w.items[i]
	}
	w.transitionAndUnlock(nil)

	if genErr != nil {
		return updated, fmt.Errorf("regenerate enhancement: %w", genErr)
	}
	return updated, nil
}

// finishItemLocked records a generation outcome on the item, if it still
// exists, and reports whether generation succeeded.
func (w *Enhancements) finishItemLocked(id string, content *Content, err error) bool {
	i := w.indexLocked(id)
	if i < 0 {
		w.logger.Info("dropping generation result for removed enhancement", "enhancement_id", id)
		return false
	}
	e := &w.items[i]
	if err != nil {
		w.logger.Warn("enhancement generation failed", "enhancement_id", id, "type", string(e.Type), "error", err)
		e.Status = ItemError
		e.Error = gateway.UserMessage(err)
		return false
	}
	e.Status = ItemReady
	e.Content = content
	return true
}

func (w *Enhancements) generate(ctx context.Context, e Enhancement) (*Content, error) {
	if e.Type == TypeSFX {
		res, err := w.gw.GenerateSFX(ctx, gateway.SFXRequest{
			Prompt:   e.prompt(),
			Duration: gateway.ClampSFXDuration(e.Duration),
		})
		if err != nil {
			return nil, err
		}
		return &Content{Type: "audio", URL: res.AudioURL, Prompt: res.Prompt}, nil
	}

	w.mu.Lock()
	style := w.videoStyle
	w.mu.Unlock()
	res, err := w.gw.GenerateImage(ctx, gateway.ImageRequest{
		Prompt:      e.prompt(),
		Style:       style,
		AspectRatio: "16:9",
	})
	if err != nil {
		return nil, err
	}
	return &Content{Type: "image", URL: res.ImageURL, Prompt: res.Prompt}, nil
}

// Reset clears every enhancement and supersedes calls in flight.
func (w *Enhancements) Reset() {
	w.mu.Lock()
	w.epoch++
	w.items = nil
	w.summary = ""
	w.videoStyle = ""
	w.density = ""
	w.transitionAndUnlock(EnhIdle{})
}
