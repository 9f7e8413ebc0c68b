package http

import (
	"net/http"
	"strconv"

	"idrealm/pkg/requestcontext"
	dErrors "idrealm/pkg/domain-errors"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authenticateRequest struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ok, err := s.realm.Users.Authenticate(r.Context(), req.Username, []byte(req.Credential))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, dErrors.New(dErrors.CodeAuthentication, "authentication failed"))
		return
	}
	roles, err := s.realm.Users.GetRoleListOfUser(r.Context(), req.Username)
	if err != nil {
		// The subject is authenticated; issue the token without roles.
		s.logger.WarnContext(r.Context(), "role resolution failed at token issuance",
			"user", req.Username, "error", err.Error())
		roles = nil
	}
	token, err := s.tokens.Issue(req.Username, roles, requestcontext.Now(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "roles": roles})
}

type addUserRequest struct {
	Username   string            `json:"username"`
	Credential string            `json:"credential"`
	Roles      []string          `json:"roles,omitempty"`
	Claims     map[string]string `json:"claims,omitempty"`
	Profile    string            `json:"profile,omitempty"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.realm.Users.AddUser(r.Context(), req.Username, []byte(req.Credential), req.Roles, req.Claims, req.Profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.DeleteUser(r.Context(), req.Username); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

type updateCredentialRequest struct {
	Username      string `json:"username"`
	OldCredential string `json:"old_credential,omitempty"`
	NewCredential string `json:"new_credential"`
}

func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	var req updateCredentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.realm.Users.UpdateCredential(r.Context(), req.Username, []byte(req.NewCredential), []byte(req.OldCredential))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUpdateCredentialByAdmin(w http.ResponseWriter, r *http.Request) {
	var req updateCredentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.realm.Users.UpdateCredentialByAdmin(r.Context(), req.Username, []byte(req.NewCredential))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("filter")
	limit := intParam(q.Get("limit"))
	offset := intParam(q.Get("offset"))

	if q.Has("offset") {
		page, err := s.realm.Users.ListPaginatedUsers(r.Context(), filter, limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"users":   page.Names,
			"skipped": page.SkippedCount,
		})
		return
	}

	users, err := s.realm.Users.ListUsers(r.Context(), filter, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	claim := q.Get("claim")
	value := q.Get("value")
	profile := q.Get("profile")

	if q.Has("offset") {
		page, err := s.realm.Users.GetPaginatedUserList(r.Context(), claim, value, profile,
			intParam(q.Get("limit")), intParam(q.Get("offset")))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"users":   page.Names,
			"skipped": page.SkippedCount,
		})
		return
	}

	users, err := s.realm.Users.GetUserList(r.Context(), claim, value, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGetClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := q.Get("username")
	profile := q.Get("profile")

	if claim := q.Get("claim"); claim != "" {
		value, err := s.realm.Users.GetUserClaimValue(r.Context(), username, claim, profile)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{claim: value})
		return
	}

	claims, err := s.realm.Users.GetUserClaimValues(r.Context(), username, q["claims"], profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, claims)
}

type setClaimsRequest struct {
	Username string            `json:"username"`
	Claims   map[string]string `json:"claims"`
	Profile  string            `json:"profile,omitempty"`
}

func (s *Server) handleSetClaims(w http.ResponseWriter, r *http.Request) {
	var req setClaimsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.SetUserClaimValues(r.Context(), req.Username, req.Claims, req.Profile); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

type deleteClaimsRequest struct {
	Username string   `json:"username"`
	Claims   []string `json:"claims"`
	Profile  string   `json:"profile,omitempty"`
}

func (s *Server) handleDeleteClaims(w http.ResponseWriter, r *http.Request) {
	var req deleteClaimsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.DeleteUserClaimValues(r.Context(), req.Username, req.Claims, req.Profile); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRolesOfUser(w http.ResponseWriter, r *http.Request) {
	roles, err := s.realm.Users.GetRoleListOfUser(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type updateRolesOfUserRequest struct {
	Username string   `json:"username"`
	Deleted  []string `json:"deleted,omitempty"`
	Added    []string `json:"added,omitempty"`
}

func (s *Server) handleUpdateRolesOfUser(w http.ResponseWriter, r *http.Request) {
	var req updateRolesOfUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.UpdateRoleListOfUser(r.Context(), req.Username, req.Deleted, req.Added); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleIsUserInRole(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	inRole, err := s.realm.Users.IsUserInRole(r.Context(), q.Get("username"), q.Get("role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"in_role": inRole})
}

type addRoleRequest struct {
	Role    string   `json:"role"`
	Members []string `json:"members,omitempty"`
}

func (s *Server) handleAddRole(w http.ResponseWriter, r *http.Request) {
	var req addRoleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.AddRole(r.Context(), req.Role, req.Members); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"role": req.Role})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.DeleteRole(r.Context(), req.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roles, err := s.realm.Users.GetRoleNames(r.Context(), q.Get("filter"), intParam(q.Get("limit")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type renameRoleRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (s *Server) handleRenameRole(w http.ResponseWriter, r *http.Request) {
	var req renameRoleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.UpdateRoleName(r.Context(), req.OldName, req.NewName); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleMembersOfRole(w http.ResponseWriter, r *http.Request) {
	users, err := s.realm.Users.GetUserListOfRole(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type updateMembersRequest struct {
	Role    string   `json:"role"`
	Deleted []string `json:"deleted,omitempty"`
	Added   []string `json:"added,omitempty"`
}

func (s *Server) handleUpdateMembersOfRole(w http.ResponseWriter, r *http.Request) {
	var req updateMembersRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.realm.Users.UpdateUserListOfRole(r.Context(), req.Role, req.Deleted, req.Added); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func intParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
