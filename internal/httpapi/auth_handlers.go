package httpapi

import (
	"net/http"
	"strings"

	"sptm.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Role narrows a user login to the driver or passenger app.
	Role string `json:"role,omitempty"`
	// Context is the legacy body alternative to the X-App-Context header.
	Context string `json:"context,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type meResponse struct {
	Principal   auth.PrincipalSummary `json:"principal"`
	Permissions []string              `json:"permissions"`
	Rank        int                   `json:"rank"`
	Platform    auth.Platform         `json:"platform"`
}

// kindFromSlug maps the login path segment to a principal kind. The driver
// and passenger slugs are user logins with a declared sub-role.
func kindFromSlug(slug string) (auth.Kind, auth.SubRole, bool) {
	switch slug {
	case "superadmin", "super-admin":
		return auth.KindSuperAdmin, auth.SubRoleNone, true
	case "admin":
		return auth.KindAdmin, auth.SubRoleNone, true
	case "organization", "org":
		return auth.KindOrganization, auth.SubRoleNone, true
	case "user":
		return auth.KindUser, auth.SubRoleNone, true
	case "driver":
		return auth.KindUser, auth.SubRoleDriver, true
	case "passenger":
		return auth.KindUser, auth.SubRolePassenger, true
	}
	return "", auth.SubRoleNone, false
}

// handleAuth dispatches /v1/auth/... to the concrete handlers.
func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auth/")
	switch {
	case rest == "refresh":
		a.handleRefresh(w, r)
	case rest == "logout":
		a.handleLogout(w, r)
	case rest == "me":
		a.handleMe(w, r)
	case rest == "password":
		a.handleChangePassword(w, r)
	case strings.HasSuffix(rest, "/login"):
		a.handleLogin(w, r, strings.TrimSuffix(rest, "/login"))
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	kind, declaredRole, ok := kindFromSlug(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeBadRequest(w, r, "email and password are required")
		return
	}
	if role := auth.SubRole(strings.TrimSpace(req.Role)); role != auth.SubRoleNone {
		declaredRole = role
	}

	// The login surface must agree with the role the body declares: a
	// passenger-app login for a driver account is rejected up front.
	rc, err := auth.ResolveContext(r.URL.Path, r.Header.Get(appContextHeader), req.Context, r.UserAgent())
	if err == nil {
		if declaredRole != auth.SubRoleNone {
			if err := auth.ValidateContext(rc, declaredRole); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if rc.Kind.Known() && rc.Kind != kind {
			writeError(w, r, auth.ErrContextMismatch("login surface does not match the principal kind"))
			return
		}
	}

	res, err := a.engine.Login(r.Context(), kind, email, req.Password, clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if declaredRole != auth.SubRoleNone && res.Principal.SubRole != declaredRole {
		// Valid credentials on the wrong app: revoke what was just issued.
		_ = a.engine.Revoke(r.Context(), kind, res.Principal.ID)
		writeError(w, r, auth.ErrContextMismatch("account role does not match the login surface"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeBadRequest(w, r, "refresh_token is required")
		return
	}
	res, err := a.engine.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, auth.ErrTokenInvalid())
		return
	}
	if err := a.engine.Revoke(r.Context(), principal.Kind, principal.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, auth.ErrTokenInvalid())
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Principal:   principal.Summary(),
		Permissions: principal.Permissions,
		Rank:        principal.Rank,
		Platform:    principal.CanonicalPlatform(),
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, auth.ErrTokenInvalid())
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, r, "current_password and new_password are required")
		return
	}
	if err := a.engine.ChangePassword(r.Context(), principal.Kind, principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}
