// Package http exposes the realm's management API.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"idrealm/internal/jwttoken"
	"idrealm/internal/realm"
	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
)

// Server routes management API requests onto a realm.
type Server struct {
	realm  *realm.Realm
	tokens *jwttoken.Issuer
	logger *slog.Logger
}

// NewServer wires the handler set.
func NewServer(r *realm.Realm, tokens *jwttoken.Issuer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{realm: r, tokens: tokens, logger: logger}
}

// Router builds the chi router. Authentication and health are open;
// everything else requires a valid bearer token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/authenticate", s.handleAuthenticate)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Route("/v1/users", func(r chi.Router) {
			r.Post("/", s.handleAddUser)
			r.Delete("/", s.handleDeleteUser)
			r.Get("/", s.handleListUsers)
			r.Get("/search", s.handleSearchUsers)
			r.Put("/credential", s.handleUpdateCredential)
			r.Put("/credential/admin", s.handleUpdateCredentialByAdmin)
			r.Get("/claims", s.handleGetClaims)
			r.Put("/claims", s.handleSetClaims)
			r.Delete("/claims", s.handleDeleteClaims)
			r.Get("/roles", s.handleRolesOfUser)
			r.Put("/roles", s.handleUpdateRolesOfUser)
			r.Get("/inrole", s.handleIsUserInRole)
		})

		r.Route("/v1/roles", func(r chi.Router) {
			r.Post("/", s.handleAddRole)
			r.Delete("/", s.handleDeleteRole)
			r.Get("/", s.handleListRoles)
			r.Put("/name", s.handleRenameRole)
			r.Get("/members", s.handleMembersOfRole)
			r.Put("/members", s.handleUpdateMembersOfRole)
		})
	})

	return r
}

// requestContext threads the correlation id and request time into the
// operation context.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
		}
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireToken rejects requests without a valid bearer token and records the
// token's subject as the acting identity.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			s.writeError(w, r, dErrors.New(dErrors.CodeAuthentication, "missing bearer token"))
			return
		}
		claims, err := s.tokens.Parse(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := requestcontext.WithActor(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
	}
	var dErr *dErrors.Error
	message := err.Error()
	if errors.As(err, &dErr) {
		message = dErr.Message
	}
	s.writeJSON(w, status, errorBody{Code: string(code), ID: code.ID(), Message: message})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeInvalidDomain, dErrors.CodeUnsupportedCred:
		return http.StatusBadRequest
	case dErrors.CodeAuthentication:
		return http.StatusUnauthorized
	case dErrors.CodeReadOnly, dErrors.CodePolicyViolation, dErrors.CodeTenantDeactived:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyExists:
		return http.StatusConflict
	case dErrors.CodeUnsupported:
		return http.StatusUnprocessableEntity
	case dErrors.CodeDownstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return false
	}
	return true
}
