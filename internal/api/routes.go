package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framecraft/studio/internal/presets"
	"github.com/framecraft/studio/internal/project"
)

const defaultHistoryLimit = 100

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins...))

	r.Get("/health", healthHandler(cfg))

	// Video elements cannot send the bearer token, so media is limited to
	// local clients instead.
	r.With(LoopbackGuard()).Get("/projects/{id}/media", projectMediaHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))
		r.Get("/projects/{id}/history", projectHistoryHandler(cfg))

		r.Get("/presets", listPresetsHandler(cfg))
		r.Post("/presets", savePresetHandler(cfg))
		r.Delete("/presets/{id}", deletePresetHandler(cfg))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", listSessionsHandler(cfg))
			r.Post("/", createSessionHandler(cfg))
			r.Route("/{id}", func(r chi.Router) {
				mountSessionRoutes(r, cfg)
			})
		})
	})

	return r
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched when optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := cfg.Sessions.List()
		state := "idle"
		if len(sessions) > 0 {
			state = "editing"
		}
		WriteJSON(w, http.StatusOK, StatusResponse{
			State:        state,
			GatewayMode:  cfg.GatewayMode,
			SessionsOpen: len(sessions),
			Sessions:     sessions,
		})
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.List(r.Context())
		if err != nil {
			cfg.Logger.Error("failed to list projects", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}
		if projects == nil {
			projects = []*project.Project{}
		}
		WriteJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req project.CreateInput
		if err := decodeBody(r, &req, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		p, err := cfg.Projects.Create(r.Context(), req)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Projects.Delete(r.Context(), id); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if n := cfg.Sessions.CloseProject(id); n > 0 {
			cfg.Logger.Info("closed sessions of deleted project", "project_id", id, "count", n)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func projectHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}
		edits, err := cfg.Projects.History(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if edits == nil {
			edits = []*project.EditEntry{}
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{Edits: edits})
	}
}

func projectMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if p.VideoPath == "" {
			WriteError(w, http.StatusNotFound, "project has no local video", "NOT_FOUND")
			return
		}
		if err := cfg.Media.ServeFile(w, r, p.VideoPath); err != nil {
			writeDomainError(w, cfg.Logger, err)
		}
	}
}

func listPresetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var kind presets.Kind
		if raw := r.URL.Query().Get("kind"); raw != "" {
			k, ok := presets.ParseKind(raw)
			if !ok {
				WriteError(w, http.StatusBadRequest, "unknown preset kind", "BAD_REQUEST")
				return
			}
			kind = k
		}
		list, err := cfg.Presets.List(r.Context(), kind)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if list == nil {
			list = []*presets.Preset{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"presets": list})
	}
}

// savePresetHandler creates a preset, or updates it when the body carries
// an id.
func savePresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p presets.Preset
		if err := decodeBody(r, &p, false); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		status := http.StatusOK
		if p.ID == "" {
			status = http.StatusCreated
		}
		if err := cfg.Presets.Save(r.Context(), &p); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, status, p)
	}
}

func deletePresetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Presets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
