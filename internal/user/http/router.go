package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/dto"
	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/user-directory/backend/internal/common/http"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/mapper"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox/reprocess"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

type UserService interface {
	Create(ctx context.Context, correlationID string, input domain.User) (domain.User, error)
	Update(ctx context.Context, correlationID, username string, profile domain.UserProfile) (domain.User, bool, error)
	Disable(ctx context.Context, correlationID, username string) (string, bool, error)
	FindByUsername(ctx context.Context, username string) (domain.User, bool, error)
}

type OutboxReader interface {
	ListAll(ctx context.Context) ([]outbox.Entry, error)
	FindByID(ctx context.Context, id int64) (outbox.Entry, bool, error)
}

type Reprocessor interface {
	RunOnce(ctx context.Context) (reprocess.Report, error)
}

type HandlerConfig struct {
	RequestTimeout time.Duration
	HealthChecks   map[string]commonhttp.HealthCheck
}

type Handler struct {
	users       UserService
	outbox      OutboxReader
	reprocessor Reprocessor
	timeout     time.Duration
	errors      *commonhttp.ErrorHandler
	log         *logger.Logger
}

func NewHandler(users UserService, outbox OutboxReader, reprocessor Reprocessor, cfg HandlerConfig, log *logger.Logger) http.Handler {
	h := &Handler{
		users:       users,
		outbox:      outbox,
		reprocessor: reprocessor,
		timeout:     cfg.RequestTimeout,
		errors:      commonhttp.NewErrorHandler(log),
		log:         log,
	}
	if h.timeout <= 0 {
		h.timeout = constants.DefaultUserDirRequestTimeout
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", commonhttp.HealthHandler(log, cfg.HealthChecks))
	mux.HandleFunc("GET /api/appusers/{username}", h.getUser)
	mux.HandleFunc("POST /api/appusers", h.createUser)
	mux.HandleFunc("PUT /api/appusers", h.updateUser)
	mux.HandleFunc("PUT /api/appusers/{username}/disable", h.disableUser)
	mux.HandleFunc("GET /api/outbox", h.listOutbox)
	mux.HandleFunc("GET /api/outbox/{id}", h.getOutboxEntry)
	mux.HandleFunc("POST /api/outbox/reprocess", h.reprocess)
	return mux
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	username, ok := commonhttp.PathString(r, "username")
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUsernameRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, found, err := h.users.FindByUsername(ctx, username)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if !found {
		h.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "get_user_not_found",
		}).Debug("user not found")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.UserToDTO(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req dto.User
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := h.users.Create(ctx, commonhttp.CorrelationIDFromContext(ctx), mapper.UserFromDTO(req))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/appusers/"+url.PathEscape(user.Username))
	commonhttp.WriteJSON(w, http.StatusCreated, mapper.UserToDTO(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.User
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		h.errors.HandleError(w, r, commonerrors.ErrUsernameRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, found, err := h.users.Update(ctx, commonhttp.CorrelationIDFromContext(ctx), req.Username, mapper.ProfileFromDTO(req))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.UserToDTO(user))
}

func (h *Handler) disableUser(w http.ResponseWriter, r *http.Request) {
	username, ok := commonhttp.PathString(r, "username")
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUsernameRequired)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	disabled, found, err := h.users.Disable(ctx, commonhttp.CorrelationIDFromContext(ctx), username)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, dto.DisabledUser{Username: disabled})
}

func (h *Handler) listOutbox(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entries, err := h.outbox.ListAll(ctx)
	if err != nil {
		h.errors.HandleError(w, r, commonerrors.ErrDatabaseError.WithCause(err))
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.OutboxEntriesToDTO(entries))
}

func (h *Handler) getOutboxEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := commonhttp.PathInt64(r, "id")
	if !ok {
		commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidPath, "outbox id must be a positive integer", nil, commonhttp.TraceIDFromContext(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entry, found, err := h.outbox.FindByID(ctx, id)
	if err != nil {
		h.errors.HandleError(w, r, commonerrors.ErrDatabaseError.WithCause(err))
		return
	}
	if !found {
		h.errors.HandleError(w, r, commonerrors.ErrOutboxEntryNotFound)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.OutboxEntryToDTO(entry))
}

func (h *Handler) reprocess(w http.ResponseWriter, r *http.Request) {
	report, err := h.reprocessor.RunOnce(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, commonerrors.ErrDatabaseError.WithCause(err))
		return
	}

	h.log.WithFields(r.Context(), logger.Fields{
		"claimed": report.Claimed,
		"action":  "outbox_reprocess_manual",
	}).Info("manual outbox reprocess finished")
	commonhttp.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := commonhttp.DecodeJSON(r, v)
	if err == nil {
		return true
	}

	traceID := commonhttp.TraceIDFromContext(r.Context())
	if commonhttp.IsBodyTooLarge(err) {
		commonhttp.WriteErrorEnvelope(w, http.StatusRequestEntityTooLarge, commonhttp.CodeRequestTooLarge, "request body too large", nil, traceID)
		return false
	}

	h.log.WithFields(r.Context(), logger.Fields{
		"path":   r.URL.Path,
		"action": "invalid_json",
	}).Warnf("invalid json: %v", err)
	commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidJSON, "invalid json", nil, traceID)
	return false
}
