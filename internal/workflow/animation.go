package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/framecraft/studio/internal/gateway"
)

// Step is a stage of the animation workflow. Steps run strictly in order.
type Step int

const (
	StepContextAnalysis Step = iota
	StepStyleSelection
	StepStoryboardGeneration
	StepElementReview
	StepAnimationPreview
	StepFinalIntegration
)

const totalSteps = 6

var stepNames = [totalSteps]string{
	"context_analysis",
	"style_selection",
	"storyboard_generation",
	"element_review",
	"animation_preview",
	"final_integration",
}

func (s Step) String() string {
	if s < 0 || int(s) >= totalSteps {
		return "unknown"
	}
	return stepNames[s]
}

func ParseStep(name string) (Step, bool) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), true
		}
	}
	return 0, false
}

// Progress maps a step onto 0..100.
func (s Step) Progress() int {
	return int(s) * 100 / (totalSteps - 1)
}

// AnimationState is one of AnimIdle, AnimAnalyzing, AnimReviewing,
// AnimGenerating, AnimComplete or AnimFailed.
type AnimationState interface {
	Status() Status
	animationState()
}

type AnimIdle struct{}

// AnimAnalyzing is context analysis in flight.
type AnimAnalyzing struct {
	Input string
}

// AnimReviewing waits for the user at the current step.
type AnimReviewing struct{}

// AnimGenerating is storyboard generation in flight.
type AnimGenerating struct {
	Style string
}

type AnimComplete struct {
	Applied []AppliedElement
}

type AnimFailed struct {
	Failure
}

func (AnimIdle) Status() Status       { return StatusIdle }
func (AnimAnalyzing) Status() Status  { return StatusAnalyzing }
func (AnimReviewing) Status() Status  { return StatusReviewing }
func (AnimGenerating) Status() Status { return StatusGenerating }
func (AnimComplete) Status() Status   { return StatusComplete }
func (AnimFailed) Status() Status     { return StatusError }

func (AnimIdle) animationState()       {}
func (AnimAnalyzing) animationState()  {}
func (AnimReviewing) animationState()  {}
func (AnimGenerating) animationState() {}
func (AnimComplete) animationState()   {}
func (AnimFailed) animationState()     {}

// AppliedElement is an approved storyboard element with absolute timing.
type AppliedElement struct {
	ID        string            `json:"id"`
	SceneID   string            `json:"sceneId"`
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	StartTime float64           `json:"startTime"`
	EndTime   float64           `json:"endTime"`
	Position  *gateway.Position `json:"position,omitempty"`
	Animation string            `json:"animation,omitempty"`
	Style     map[string]any    `json:"style,omitempty"`
}

// StyleChoice is the storyboard style picked at style selection.
type StyleChoice struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
}

// AnimationGateway is what the animation workflow needs from the remote side.
type AnimationGateway interface {
	AnalyzeContext(ctx context.Context, in gateway.MediaInput) (*gateway.VideoContext, error)
	GenerateStoryboard(ctx context.Context, req gateway.StoryboardRequest) (*gateway.Storyboard, error)
}

type AnimationSnapshot struct {
	Status           Status                `json:"status"`
	Progress         int                   `json:"progress"`
	Step             string                `json:"step"`
	ReachedStep      string                `json:"reachedStep"`
	Style            *StyleChoice          `json:"style,omitempty"`
	VideoContext     *gateway.VideoContext `json:"videoContext,omitempty"`
	Storyboard       *gateway.Storyboard   `json:"storyboard,omitempty"`
	ApprovedElements []string              `json:"approvedElements"`
	Applied          []AppliedElement      `json:"applied,omitempty"`
	Error            *Failure              `json:"error,omitempty"`
	Epoch            uint64                `json:"epoch"`
	Seq              uint64                `json:"seq"`
}

// Animation is the context analysis → style → storyboard → review → preview
// → apply workflow.
type Animation struct {
	mu       sync.Mutex
	gw       AnimationGateway
	duration func() float64
	logger   *slog.Logger
	notifier Notifier[AnimationSnapshot]

	epoch   uint64
	seq     uint64
	state   AnimationState
	step    Step
	reached Step

	videoContext *gateway.VideoContext
	style        *StyleChoice
	storyboard   *gateway.Storyboard
	approved     map[string]bool
	applied      []AppliedElement
}

// NewAnimation returns an idle workflow. duration reports the media length
// and may be nil.
func NewAnimation(gw AnimationGateway, duration func() float64, logger *slog.Logger) *Animation {
	if duration == nil {
		duration = func() float64 { return 0 }
	}
	return &Animation{
		gw:       gw,
		duration: duration,
		logger:   logger.With("workflow", "animation"),
		state:    AnimIdle{},
		approved: make(map[string]bool),
	}
}

func (w *Animation) Subscribe(fn func(AnimationSnapshot)) func() {
	return w.notifier.Subscribe(fn)
}

func (w *Animation) State() AnimationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Animation) Snapshot() AnimationSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Animation) snapshotLocked() AnimationSnapshot {
	snap := AnimationSnapshot{
		Status:           w.state.Status(),
		Progress:         w.step.Progress(),
		Step:             w.step.String(),
		ReachedStep:      w.reached.String(),
		Style:            w.style,
		VideoContext:     w.videoContext,
		Storyboard:       w.storyboard,
		ApprovedElements: w.approvedLocked(),
		Epoch:            w.epoch,
		Seq:              w.seq,
	}
	switch st := w.state.(type) {
	case AnimIdle:
		snap.Progress = 0
	case AnimComplete:
		snap.Applied = st.Applied
	case AnimFailed:
		f := st.Failure
		snap.Error = &f
	}
	return snap
}

func (w *Animation) approvedLocked() []string {
	ids := make([]string, 0, len(w.approved))
	for id := range w.approved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// transitionAndUnlock must be called with mu held. It sets the new state and
// step, releases mu, logs and publishes.
func (w *Animation) transitionAndUnlock(next AnimationState, step Step) {
	from := w.state.Status()
	w.state = next
	w.step = step
	if step > w.reached {
		w.reached = step
	}
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	logTransition(w.logger, from, next.Status(), "step", step.String())
	w.notifier.publish(snap.Seq, snap)
}

// AnalyzeContext runs context analysis on exactly one of video bytes, a video
// URL or a transcript, then advances to style selection.
func (w *Animation) AnalyzeContext(ctx context.Context, in gateway.MediaInput) (*gateway.VideoContext, error) {
	if n := in.Provided(); n != 1 {
		msg := "provide a video, a video URL or a transcript"
		if n > 1 {
			msg = "provide only one of video, video URL or transcript"
		}
		return nil, &ValidationError{Field: "input", Message: msg}
	}

	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	w.transitionAndUnlock(AnimAnalyzing{Input: in.Kind()}, StepContextAnalysis)

	vc, err := w.gw.AnalyzeContext(ctx, in)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.logger.Warn("discarding stale context analysis", "epoch", epoch)
		return nil, ErrSuperseded
	}
	if err != nil {
		w.logger.Error("context analysis failed", "error", err)
		w.transitionAndUnlock(AnimFailed{Failure: failureFrom(err)}, StepContextAnalysis)
		return nil, fmt.Errorf("analyze context: %w", err)
	}

	// A new context invalidates everything generated from the old one.
	w.videoContext = vc
	w.storyboard = nil
	w.approved = make(map[string]bool)
	w.applied = nil
	w.reached = StepStyleSelection
	w.transitionAndUnlock(AnimReviewing{}, StepStyleSelection)
	return vc, nil
}

// GenerateStoryboard requires a prior successful context analysis.
func (w *Animation) GenerateStoryboard(ctx context.Context, style StyleChoice) (*gateway.Storyboard, error) {
	style.Name = strings.TrimSpace(style.Name)
	if style.Name == "" {
		return nil, &ValidationError{Field: "style", Message: "a style is required"}
	}

	w.mu.Lock()
	if w.videoContext == nil {
		w.mu.Unlock()
		return nil, &PreconditionError{Op: "generate storyboard", Requirement: "context analysis has not completed"}
	}
	w.epoch++
	epoch := w.epoch
	w.style = &style
	req := gateway.StoryboardRequest{
		Context:       *w.videoContext,
		Style:         style.Name,
		StyleSettings: style.Settings,
		Duration:      w.duration(),
	}
	w.transitionAndUnlock(AnimGenerating{Style: style.Name}, StepStoryboardGeneration)

	sb, err := w.gw.GenerateStoryboard(ctx, req)

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.logger.Warn("discarding stale storyboard", "epoch", epoch)
		return nil, ErrSuperseded
	}
	if err != nil {
		w.logger.Error("storyboard generation failed", "error", err)
		w.transitionAndUnlock(AnimFailed{Failure: failureFrom(err)}, StepStoryboardGeneration)
		return nil, fmt.Errorf("generate storyboard: %w", err)
	}

	ensureElementIDs(sb)
	w.storyboard = sb
	w.approved = make(map[string]bool)
	w.applied = nil
	w.reached = StepElementReview
	w.transitionAndUnlock(AnimReviewing{}, StepElementReview)
	return sb, nil
}

// ensureElementIDs gives every element a unique id; approval is keyed by it.
func ensureElementIDs(sb *gateway.Storyboard) {
	seen := make(map[string]bool)
	for i := range sb.Scenes {
		scene := &sb.Scenes[i]
		if scene.ID == "" {
			scene.ID = uuid.NewString()
		}
		for j := range scene.Elements {
			el := &scene.Elements[j]
			if el.ID == "" || seen[el.ID] {
				el.ID = uuid.NewString()
			}
			seen[el.ID] = true
		}
	}
}

func (w *Animation) hasElementLocked(id string) bool {
	if w.storyboard == nil {
		return false
	}
	for _, scene := range w.storyboard.Scenes {
		for _, el := range scene.Elements {
			if el.ID == id {
				return true
			}
		}
	}
	return false
}

// ApproveElement adds id to the approved set. It is idempotent.
func (w *Animation) ApproveElement(id string) error {
	return w.setApproval(id, true)
}

// UnapproveElement removes id from the approved set. It is idempotent.
func (w *Animation) UnapproveElement(id string) error {
	return w.setApproval(id, false)
}

func (w *Animation) setApproval(id string, approved bool) error {
	w.mu.Lock()
	if !w.hasElementLocked(id) {
		w.mu.Unlock()
		return notFound("storyboard element", id)
	}
	if approved {
		w.approved[id] = true
	} else {
		delete(w.approved, id)
	}
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notifier.publish(snap.Seq, snap)
	return nil
}

// ApproveAll approves every storyboard element.
func (w *Animation) ApproveAll() error {
	w.mu.Lock()
	if w.storyboard == nil {
		w.mu.Unlock()
		return &PreconditionError{Op: "approve all", Requirement: "no storyboard has been generated"}
	}
	for _, id := range w.storyboard.ElementIDs() {
		w.approved[id] = true
	}
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notifier.publish(snap.Seq, snap)
	return nil
}

// PreviewAnimations moves from element review to preview.
func (w *Animation) PreviewAnimations() error {
	w.mu.Lock()
	if w.storyboard == nil || w.reached < StepElementReview {
		w.mu.Unlock()
		return &PreconditionError{Op: "preview animations", Requirement: "no storyboard has been generated"}
	}
	if len(w.approved) == 0 {
		w.mu.Unlock()
		return &PreconditionError{Op: "preview animations", Requirement: "approve at least one element"}
	}
	w.transitionAndUnlock(AnimReviewing{}, StepAnimationPreview)
	return nil
}

// Apply completes the workflow and returns the approved elements with
// absolute timings, clamped to the media when its duration is known.
func (w *Animation) Apply() ([]AppliedElement, error) {
	w.mu.Lock()
	if w.reached < StepAnimationPreview || w.storyboard == nil {
		w.mu.Unlock()
		return nil, &PreconditionError{Op: "apply animations", Requirement: "animations have not been previewed"}
	}
	if len(w.approved) == 0 {
		w.mu.Unlock()
		return nil, &PreconditionError{Op: "apply animations", Requirement: "approve at least one element"}
	}

	duration := w.duration()
	var applied []AppliedElement
	for _, scene := range w.storyboard.Scenes {
		for _, el := range scene.Elements {
			if !w.approved[el.ID] {
				continue
			}
			start := scene.StartTime + el.StartTime
			end := scene.StartTime + el.EndTime
			if duration > 0 && end > duration {
				end = duration
			}
			if end <= start {
				w.logger.Warn("skipping element outside the media", "element_id", el.ID)
				continue
			}
			applied = append(applied, AppliedElement{
				ID:        el.ID,
				SceneID:   scene.ID,
				Kind:      el.Kind,
				Content:   el.Content,
				StartTime: start,
				EndTime:   end,
				Position:  el.Position,
				Animation: el.Animation,
				Style:     el.Style,
			})
		}
	}
	w.applied = applied
	w.transitionAndUnlock(AnimComplete{Applied: applied}, StepFinalIntegration)
	return applied, nil
}

// GoToStep revisits a step that has already been reached. Any call in
// flight is superseded.
func (w *Animation) GoToStep(step Step) error {
	if step < 0 || int(step) >= totalSteps {
		return &ValidationError{Field: "step", Message: fmt.Sprintf("unknown step %d", step)}
	}

	w.mu.Lock()
	if step > w.reached {
		w.mu.Unlock()
		return &PreconditionError{Op: "go to step", Requirement: fmt.Sprintf("step %s has not been reached", step)}
	}
	w.epoch++
	var next AnimationState = AnimReviewing{}
	switch {
	case step == StepFinalIntegration:
		next = AnimComplete{Applied: w.applied}
	case step == StepContextAnalysis && w.videoContext == nil:
		next = AnimIdle{}
	}
	w.transitionAndUnlock(next, step)
	return nil
}

// Reset returns to idle and clears every result.
func (w *Animation) Reset() {
	w.mu.Lock()
	w.epoch++
	w.videoContext = nil
	w.style = nil
	w.storyboard = nil
	w.approved = make(map[string]bool)
	w.applied = nil
	w.reached = StepContextAnalysis
	w.transitionAndUnlock(AnimIdle{}, StepContextAnalysis)
}

// VideoContext returns the last successful context analysis, if any.
func (w *Animation) VideoContext() *gateway.VideoContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.videoContext
}
