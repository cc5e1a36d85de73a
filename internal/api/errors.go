package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/framecraft/studio/internal/editor"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/media"
	"github.com/framecraft/studio/internal/presets"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/session"
	"github.com/framecraft/studio/internal/workflow"
)

// writeDomainError maps an error from the session layer onto a status and an
// error code. Anything unrecognised is treated as a failed remote operation
// when it came from the gateway, and as an internal error otherwise.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	message := err.Error()
	switch status {
	case http.StatusTooManyRequests, http.StatusPaymentRequired, http.StatusBadGateway:
		message = gateway.UserMessage(err)
		logger.Warn("remote operation failed", "error", err)
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		message = "internal server error"
	}
	WriteError(w, status, message, code)
}

func classify(err error) (int, string) {
	var (
		validation   *workflow.ValidationError
		precondition *workflow.PreconditionError
		projectErr   *project.ValidationError
		remote       *gateway.RemoteError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &projectErr),
		errors.Is(err, presets.ErrInvalid),
		errors.Is(err, editor.ErrMissedClip), errors.Is(err, editor.ErrNoGeometry):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.As(err, &precondition):
		return http.StatusConflict, "PRECONDITION_FAILED"
	case errors.Is(err, workflow.ErrSuperseded):
		return http.StatusConflict, "SUPERSEDED"
	case errors.Is(err, presets.ErrDuplicateName):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, editor.ErrDragActive), errors.Is(err, editor.ErrNotDragging):
		return http.StatusConflict, "DRAG_STATE"
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, project.ErrNotFound),
		errors.Is(err, presets.ErrNotFound), errors.Is(err, session.ErrNotFound),
		errors.Is(err, editor.ErrNoClip), errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &remote):
		switch remote.Category() {
		case gateway.CategoryRateLimited:
			return http.StatusTooManyRequests, "RATE_LIMITED"
		case gateway.CategoryQuotaExhausted:
			return http.StatusPaymentRequired, "QUOTA_EXHAUSTED"
		}
		return http.StatusBadGateway, "OPERATION_FAILED"
	case errors.Is(err, gateway.ErrMalformedResponse), errors.Is(err, gateway.ErrNoImage),
		errors.Is(err, gateway.ErrUnsupportedInput):
		return http.StatusBadGateway, "OPERATION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
