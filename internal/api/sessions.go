package api

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/framecraft/studio/internal/export"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/logging"
	"github.com/framecraft/studio/internal/session"
	"github.com/framecraft/studio/internal/workflow"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves the {id} path parameter to an open session.
func withSession(cfg ServerConfig, h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		h(w, r, s)
	}
}

func mountSessionRoutes(r chi.Router, cfg ServerConfig) {
	r.Get("/", withSession(cfg, getSession))
	r.Delete("/", deleteSessionHandler(cfg))
	r.Get("/ws", withSession(cfg, sessionSocket(cfg)))

	r.Post("/transcribe", withSession(cfg, transcribe(cfg)))
	r.Post("/seek", withSession(cfg, seek))
	r.Get("/active", withSession(cfg, active))
	r.Put("/captions/{index}", withSession(cfg, setCaption(cfg)))
	r.Delete("/captions/{index}", withSession(cfg, resetCaption(cfg)))

	r.Route("/animation", func(r chi.Router) {
		r.Post("/analyze", withSession(cfg, analyzeContext(cfg)))
		r.Post("/storyboard", withSession(cfg, storyboard(cfg)))
		r.Post("/approve-all", withSession(cfg, approveAllElements(cfg)))
		r.Post("/preview", withSession(cfg, previewAnimations(cfg)))
		r.Post("/apply", withSession(cfg, applyAnimations(cfg)))
		r.Post("/reset", withSession(cfg, resetAnimation))
		r.Post("/step", withSession(cfg, goToStep(cfg)))
		r.Post("/elements/{elementID}/approval", withSession(cfg, elementApproval(cfg, true)))
		r.Delete("/elements/{elementID}/approval", withSession(cfg, elementApproval(cfg, false)))
	})

	r.Route("/enhancements", func(r chi.Router) {
		r.Post("/", withSession(cfg, addEnhancement(cfg)))
		r.Post("/analyze", withSession(cfg, analyzeEnhancements(cfg)))
		r.Post("/approve-all", withSession(cfg, approveAllEnhancements))
		r.Post("/generate", withSession(cfg, generateEnhancements(cfg)))
		r.Post("/reset", withSession(cfg, resetEnhancements))
		r.Post("/{eid}/approve", withSession(cfg, enhancementOp(cfg, (*workflow.Enhancements).Approve)))
		r.Post("/{eid}/reject", withSession(cfg, enhancementOp(cfg, (*workflow.Enhancements).Reject)))
		r.Post("/{eid}/regenerate", withSession(cfg, regenerateEnhancement(cfg)))
		r.Patch("/{eid}", withSession(cfg, patchEnhancement(cfg)))
		r.Delete("/{eid}", withSession(cfg, deleteEnhancement(cfg)))
	})

	r.Post("/chat", withSession(cfg, sendChat(cfg)))
	r.Delete("/chat", withSession(cfg, clearChat))
	r.Post("/chat/{messageID}/apply", withSession(cfg, applyEditAction(cfg)))

	r.Route("/timeline", func(r chi.Router) {
		r.Post("/pointer-down", withSession(cfg, pointerDown(cfg)))
		r.Post("/pointer-move", withSession(cfg, pointerMove(cfg)))
		r.Post("/pointer-up", withSession(cfg, pointerUp(cfg)))
		r.Post("/click", withSession(cfg, click(cfg)))
		r.Post("/select", withSession(cfg, selectClip(cfg)))
		r.Get("/layout", withSession(cfg, layout))
	})

	r.Get("/export/captions.vtt", withSession(cfg, exportCaptions))
	r.Get("/export/timeline.edl", withSession(cfg, exportEDL))
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"sessions": cfg.Sessions.List()})
	}
}

// createSessionHandler opens a session, either on a stored project or on
// media given inline.
func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := decodeBody(r, &req, true); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		opts := session.Options{
			ProjectID:   req.ProjectID,
			Title:       req.Title,
			VideoPath:   req.VideoPath,
			VideoURL:    req.VideoURL,
			Duration:    req.Duration,
			Platform:    req.Platform,
			ContentType: req.ContentType,
		}
		if req.ProjectID != "" {
			p, err := cfg.Projects.Get(r.Context(), req.ProjectID)
			if err != nil {
				writeDomainError(w, cfg.Logger, err)
				return
			}
			if opts.Title == "" {
				opts.Title = p.Name
			}
			opts.VideoPath, opts.VideoURL = p.VideoPath, p.VideoURL
			if opts.Duration == 0 {
				opts.Duration = p.Duration
			}
		}
		if opts.Duration < 0 {
			WriteError(w, http.StatusBadRequest, "duration must not be negative", "BAD_REQUEST")
			return
		}

		s := cfg.Sessions.Create(r.Context(), opts)
		WriteJSON(w, http.StatusCreated, s.Snapshot())
	}
}

func getSession(w http.ResponseWriter, r *http.Request, s *session.Session) {
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

func deleteSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.Close(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func transcribe(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var in gateway.MediaInput
		if err := decodeBody(r, &in, true); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		tr, err := s.Transcribe(r.Context(), in)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, tr)
	}
}

func seek(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req SeekRequest
	if err := decodeBody(r, &req, false); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}
	WriteJSON(w, http.StatusOK, s.Seek(req.Time))
}

// active reports what is on screen at ?t=, or at the playhead when t is
// omitted.
func active(w http.ResponseWriter, r *http.Request, s *session.Session) {
	t := s.Store().CurrentTime()
	if raw := r.URL.Query().Get("t"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			WriteError(w, http.StatusBadRequest, "t must be a number of seconds", "BAD_REQUEST")
			return
		}
		t = v
	}
	WriteJSON(w, http.StatusOK, s.ActiveAt(t))
}

func setCaption(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "caption index must be an integer", "BAD_REQUEST")
			return
		}
		var req CaptionRequest
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := s.SetCaption(r.Context(), index, req.Text); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.TimelineView())
	}
}

func resetCaption(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "caption index must be an integer", "BAD_REQUEST")
			return
		}
		if err := s.ResetCaption(r.Context(), index); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.TimelineView())
	}
}

func analyzeContext(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var in gateway.MediaInput
		if err := decodeBody(r, &in, true); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		vc, err := s.AnalyzeContext(r.Context(), in)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, vc)
	}
}

func storyboard(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req StoryboardRequest
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		sb, err := s.GenerateStoryboard(r.Context(), workflow.StyleChoice{Name: req.Style, Settings: req.Settings})
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, sb)
	}
}

func approveAllElements(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.Animation().ApproveAll(); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Animation().Snapshot())
	}
}

func elementApproval(cfg ServerConfig, approve bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		id := chi.URLParam(r, "elementID")
		op := s.Animation().UnapproveElement
		if approve {
			op = s.Animation().ApproveElement
		}
		if err := op(id); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Animation().Snapshot())
	}
}

func previewAnimations(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.Animation().PreviewAnimations(); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Animation().Snapshot())
	}
}

func applyAnimations(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		applied, err := s.ApplyAnimations(r.Context())
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"applied": applied})
	}
}

func resetAnimation(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Animation().Reset()
	WriteJSON(w, http.StatusOK, s.Animation().Snapshot())
}

func goToStep(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req StepRequest
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		step, ok := workflow.ParseStep(req.Step)
		if !ok {
			WriteError(w, http.StatusBadRequest, "unknown step", "BAD_REQUEST")
			return
		}
		if err := s.Animation().GoToStep(step); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Animation().Snapshot())
	}
}

func addEnhancement(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req AddEnhancementRequest
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		typ, ok := workflow.ParseEnhancementType(req.Type)
		if !ok {
			WriteError(w, http.StatusBadRequest, "unknown enhancement type", "BAD_REQUEST")
			return
		}
		e, err := s.Enhancements().Add(typ, req.StartTime, req.EndTime, req.Description)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusCreated, e)
	}
}

func analyzeEnhancements(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if _, err := s.AnalyzeEnhancements(r.Context()); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Enhancements().Snapshot())
	}
}

func approveAllEnhancements(w http.ResponseWriter, r *http.Request, s *session.Session) {
	n := s.Enhancements().ApproveAll()
	WriteJSON(w, http.StatusOK, map[string]any{"approved": n, "state": s.Enhancements().Snapshot()})
}

func generateEnhancements(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		result, err := s.Enhancements().GenerateApproved(r.Context())
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, BatchResponse{Result: result, Summary: result.Summary()})
	}
}

func resetEnhancements(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Enhancements().Reset()
	WriteJSON(w, http.StatusOK, s.Enhancements().Snapshot())
}

func enhancementOp(cfg ServerConfig, op func(*workflow.Enhancements, string) error) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		id := chi.URLParam(r, "eid")
		if err := op(s.Enhancements(), id); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		e, _ := s.Enhancements().Item(id)
		WriteJSON(w, http.StatusOK, e)
	}
}

func regenerateEnhancement(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		e, err := s.Enhancements().Regenerate(r.Context(), chi.URLParam(r, "eid"))
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}

// patchEnhancement retimes and/or repositions an item. A missing bound keeps
// its current value.
func patchEnhancement(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		id := chi.URLParam(r, "eid")
		var req EnhancementPatch
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		e, ok := s.Enhancements().Item(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "enhancement not found", "NOT_FOUND")
			return
		}
		logger := sessionLogger(cfg, s)
		if req.StartTime != nil || req.EndTime != nil {
			start, end := e.StartTime, e.EndTime
			if req.StartTime != nil {
				start = *req.StartTime
			}
			if req.EndTime != nil {
				end = *req.EndTime
			}
			if err := s.RetimeEnhancement(r.Context(), id, start, end); err != nil {
				writeDomainError(w, logger, err)
				return
			}
		}
		if req.Position != nil {
			if err := s.RepositionEnhancement(r.Context(), id, *req.Position); err != nil {
				writeDomainError(w, logger, err)
				return
			}
		}
		e, _ = s.Enhancements().Item(id)
		WriteJSON(w, http.StatusOK, e)
	}
}

func deleteEnhancement(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.RemoveEnhancement(r.Context(), chi.URLParam(r, "eid")); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sendChat(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req ChatRequest
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		reply, err := s.Chat().SendMessage(r.Context(), req.Message)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, reply)
	}
}

func clearChat(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.ClearChat(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func applyEditAction(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		applied, err := s.ApplyEditAction(r.Context(), chi.URLParam(r, "messageID"))
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, applied)
	}
}

func decodePointer(w http.ResponseWriter, r *http.Request) (PointerRequest, bool) {
	var req PointerRequest
	if err := decodeBody(r, &req, false); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return req, false
	}
	return req, true
}

func pointerDown(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		req, ok := decodePointer(w, r)
		if !ok {
			return
		}
		zone, err := s.Editor().PointerDown(req.ClipID, req.X, req.Geometry)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, PointerDownResponse{Zone: zone.String()})
	}
}

func pointerMove(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		req, ok := decodePointer(w, r)
		if !ok {
			return
		}
		rng, err := s.Editor().PointerMove(req.X)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, rng)
	}
}

func pointerUp(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		req, ok := decodePointer(w, r)
		if !ok {
			return
		}
		rng, err := s.PointerUp(r.Context(), req.X)
		if err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, rng)
	}
}

func click(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		req, ok := decodePointer(w, r)
		if !ok {
			return
		}
		a, seeked := s.Click(req.X, req.Geometry)
		resp := ClickResponse{Seeked: seeked}
		if seeked {
			resp.Active = &a
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func selectClip(cfg ServerConfig) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		req, ok := decodePointer(w, r)
		if !ok {
			return
		}
		if err := s.Editor().Select(req.ClipID); err != nil {
			writeDomainError(w, sessionLogger(cfg, s), err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"selected": req.ClipID})
	}
}

func layout(w http.ResponseWriter, r *http.Request, s *session.Session) {
	WriteJSON(w, http.StatusOK, LayoutResponse{Tracks: s.Layout()})
}

func exportTitle(s *session.Session) string {
	if t := s.Options().Title; t != "" {
		return t
	}
	return "session_" + s.ID
}

func writeAttachment(w http.ResponseWriter, f export.Format, name, body string) {
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func exportCaptions(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeAttachment(w, export.FormatVTT, export.Filename(exportTitle(s), export.FormatVTT), s.CaptionsVTT())
}

// exportEDL renders the timeline at ?fps=, defaulting to 30.
func exportEDL(w http.ResponseWriter, r *http.Request, s *session.Session) {
	fps := 0.0
	if raw := r.URL.Query().Get("fps"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 120 {
			WriteError(w, http.StatusBadRequest, "fps must be between 0 and 120", "BAD_REQUEST")
			return
		}
		fps = v
	}
	writeAttachment(w, export.FormatEDL, export.Filename(exportTitle(s), export.FormatEDL), s.TimelineEDL(fps))
}

func sessionLogger(cfg ServerConfig, s *session.Session) *slog.Logger {
	return logging.WithSessionID(cfg.Logger, s.ID)
}
