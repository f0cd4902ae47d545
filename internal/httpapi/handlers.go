// Package httpapi exposes the privacy surface to the browser SPA: auth,
// the OAuth connect flow, consent management, erasure, and data export.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fellis.eu/internal/common"
	"fellis.eu/internal/facebook"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/models"
	"fellis.eu/internal/services"
)

// Interfaces over the concrete services, sized to what the handlers call.

type accountAPI interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	Login(ctx context.Context, email, password, ip string) (*services.AuthResult, error)
	Refresh(ctx context.Context, sessionID string) (*services.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
}

type consentAPI interface {
	Grant(ctx context.Context, userID, purpose, ip, agent string) (bool, error)
	Withdraw(ctx context.Context, userID, purpose, ip, agent string) error
	Status(ctx context.Context, userID string) (map[string]services.PurposeStatus, error)
}

type connectAPI interface {
	Connect(ctx context.Context, userID, code, ip string) error
}

type erasureAPI interface {
	EraseSourceData(ctx context.Context, userID string, sources []string, ip string) (*services.EraseResult, error)
	EraseAccount(ctx context.Context, userID, ip string) error
}

type exportAPI interface {
	Export(ctx context.Context, userID string) (*services.ExportBundle, error)
}

type enqueuer interface {
	Enqueue(userID string) bool
}

type oauthDialog interface {
	AuthURL(state string) string
}

// Handlers bundles the route implementations and their dependencies.
type Handlers struct {
	accounts accountAPI
	consents consentAPI
	connect  connectAPI
	erasure  erasureAPI
	export   exportAPI
	importer enqueuer
	dialog   oauthDialog
	states   *facebook.StateStore
	log      logging.Logger
}

// NewHandlers constructs the handler set.
func NewHandlers(
	accounts accountAPI,
	consents consentAPI,
	connect connectAPI,
	erasure erasureAPI,
	export exportAPI,
	importer enqueuer,
	dialog oauthDialog,
	states *facebook.StateStore,
	log logging.Logger,
) *Handlers {
	return &Handlers{
		accounts: accounts,
		consents: consents,
		connect:  connect,
		erasure:  erasure,
		export:   export,
		importer: importer,
		dialog:   dialog,
		states:   states,
		log:      log,
	}
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": result.AccessToken,
		"session_id":   result.SessionID,
	})
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.accounts.Refresh(r.Context(), req.SessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": result.AccessToken,
		"session_id":   result.SessionID,
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.accounts.Logout(r.Context(), req.SessionID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// oauthStart issues a CSRF state token and hands the SPA the dialog URL to
// redirect to.
func (h *Handlers) oauthStart(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.dialog.AuthURL(state)})
}

// oauthCallback consumes the state token and links the external account.
func (h *Handlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	state := r.URL.Query().Get("state")
	if state == "" || !h.states.Consume(state) {
		writeError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	if err := h.connect.Connect(r.Context(), userID, code, clientIP(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"linked": true})
}

func (h *Handlers) consentStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	status, err := h.consents.Status(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purposes": status})
}

// grantConsent records the grant; a fresh external_import grant additionally
// enqueues the background import, exactly once. The response's
// import_started=false covers both a repeated grant and a full queue.
func (h *Handlers) grantConsent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	purpose := chi.URLParam(r, "purpose")

	granted, err := h.consents.Grant(r.Context(), userID, purpose, clientIP(r), r.UserAgent())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	importStarted := false
	if granted && purpose == services.PurposeExternalImport {
		importStarted = h.importer.Enqueue(userID)
		if !importStarted {
			h.log.Warn(r.Context(), "import queue full", "user", userID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"granted":        true,
		"import_started": importStarted,
	})
}

// withdrawConsent writes the withdrawal to the ledger. Withdrawing the
// import purpose cascades through the erasure engine, which deletes the
// imported data, nulls the vault entry, and records the withdrawal itself;
// the ledger alone handles the other purposes.
func (h *Handlers) withdrawConsent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	purpose := chi.URLParam(r, "purpose")

	if purpose == services.PurposeExternalImport {
		result, err := h.erasure.EraseSourceData(r.Context(), userID,
			[]string{models.SourceExternalPost, models.SourceExternalPhoto}, clientIP(r))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"withdrawn":           true,
			"posts_deleted":       result.PostsDeleted,
			"friendships_deleted": result.FriendshipsDeleted,
		})
		return
	}

	if err := h.consents.Withdraw(r.Context(), userID, purpose, clientIP(r), r.UserAgent()); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"withdrawn": true})
}

func (h *Handlers) eraseSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req struct {
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.erasure.EraseSourceData(r.Context(), userID, req.Sources, clientIP(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) eraseAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	if err := h.erasure.EraseAccount(r.Context(), userID, clientIP(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) exportData(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	bundle, err := h.export.Export(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrUnknownPurpose),
		errors.Is(err, common.ErrorInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
