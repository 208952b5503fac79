package auth

import (
	"context"
	"errors"
	"time"

	"sptm.org/internal/audit"
	"sptm.org/internal/obs"
)

// Engine orchestrates authentication and authorization: it fronts the
// principal store, the token service, and the security guard, and is the only
// component request handlers talk to. All methods are safe for concurrent
// use; the engine holds no per-principal locks of its own.
type Engine struct {
	store  Store
	tokens *TokenService
	guard  SecurityGuard
	sink   audit.Sink
	now    Clock
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithEngineClock overrides the engine's time source.
func WithEngineClock(now Clock) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithAuditSink overrides the security-event sink.
func WithAuditSink(sink audit.Sink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// NewEngine wires the engine. The store, token service, and guard are
// required; the audit sink defaults to JSON lines on the shared logger.
func NewEngine(store Store, tokens *TokenService, guard SecurityGuard, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("auth: engine requires a principal store")
	}
	if tokens == nil {
		return nil, errors.New("auth: engine requires a token service")
	}
	if guard == nil {
		return nil, errors.New("auth: engine requires a security guard")
	}
	e := &Engine{
		store:  store,
		tokens: tokens,
		guard:  guard,
		sink:   audit.JSONSink{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// LoginResult is the successful outcome of a credential login.
type LoginResult struct {
	Principal PrincipalSummary `json:"principal"`
	Tokens    TokenPair        `json:"tokens"`
}

// Login authenticates a principal by email and password. The rate limit is
// keyed by client IP so one abusive source cannot lock out a principal it
// does not control; the lockout is keyed by principal id. Checks run in
// order: rate limit, principal lookup, lockout, active flag, credential
// compare. A driver without a tenant assignment never receives tokens.
func (e *Engine) Login(ctx context.Context, kind Kind, email, password, clientIP string) (*LoginResult, error) {
	if !kind.Known() {
		return nil, ErrInvalidCredentials()
	}

	rl, err := e.guard.CheckRateLimit(ctx, kind, clientIP)
	if err != nil {
		e.logAttempt(ctx, kind, "", email, clientIP, false, ErrTypeBackendUnavailable, nil)
		return nil, ErrBackendUnavailable()
	}
	if !rl.Allowed {
		obs.ObserveLogin(string(kind), "rate_limited")
		e.logAttempt(ctx, kind, "", email, clientIP, false, ErrTypeRateLimitExceeded, nil)
		return nil, ErrRateLimitExceeded(rl.ResetTime)
	}

	rec, err := e.store.FindByEmail(ctx, kind, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveLogin(string(kind), "failure")
			e.logAttempt(ctx, kind, "", email, clientIP, false, ErrTypeInvalidCredentials, nil)
			return nil, ErrInvalidCredentials()
		}
		e.logAttempt(ctx, kind, "", email, clientIP, false, ErrTypeBackendUnavailable, nil)
		return nil, ErrBackendUnavailable()
	}

	lo, err := e.guard.CheckAccountLockout(ctx, kind, rec.ID)
	if err != nil {
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, ErrTypeBackendUnavailable, nil)
		return nil, ErrBackendUnavailable()
	}
	if lo.Locked {
		obs.ObserveLogin(string(kind), "locked")
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, ErrTypeAccountLocked, nil)
		return nil, ErrAccountLocked(lo.LockedUntil)
	}

	if !rec.Active {
		obs.ObserveLogin(string(kind), "inactive")
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, ErrTypeAccountInactive, nil)
		return nil, ErrAccountInactive()
	}

	if VerifyPassword(rec.PasswordHash, password) != nil {
		if _, recErr := e.guard.RecordFailedAttempt(ctx, kind, rec.ID); recErr != nil {
			obs.LogJSON(map[string]any{"type": "guard_record_failed", "kind": string(kind), "principal_id": rec.ID})
		}
		obs.ObserveLogin(string(kind), "failure")
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, ErrTypeInvalidCredentials, nil)
		// The attempt that arms the lockout still reads as a plain credential
		// failure. Reporting the lock here would confirm the account exists,
		// which an unknown email never does.
		return nil, ErrInvalidCredentials()
	}

	if rec.Kind == KindUser && rec.SubRole == SubRoleDriver && rec.TenantID == "" {
		obs.ObserveLogin(string(kind), "failure")
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, ErrTypeInvalidCredentials,
			map[string]any{"reason": "driver without tenant assignment"})
		return nil, ErrInvalidCredentials()
	}

	pair, err := e.tokens.Issue(ctx, rec)
	if err != nil {
		e.logAttempt(ctx, kind, rec.ID, email, clientIP, false, errorType(err), nil)
		return nil, err
	}

	if err := e.guard.RecordSuccessfulAttempt(ctx, kind, rec.ID); err != nil {
		obs.LogJSON(map[string]any{"type": "guard_reset_failed", "kind": string(kind), "principal_id": rec.ID})
	}

	obs.ObserveLogin(string(kind), "success")
	e.logAttempt(ctx, kind, rec.ID, email, clientIP, true, "", nil)

	principal := e.materialize(rec)
	return &LoginResult{Principal: principal.Summary(), Tokens: pair}, nil
}

// Authenticate verifies a bearer access token and reloads the principal from
// the store so that deactivation and role changes take effect immediately,
// not at token expiry.
func (e *Engine) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	claims, err := e.tokens.Verify(bearer)
	if err != nil {
		return Principal{}, err
	}

	rec, err := e.store.FindByID(ctx, claims.Kind, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrPrincipalNotFound()
		}
		return Principal{}, ErrBackendUnavailable()
	}
	if !rec.Active {
		return Principal{}, ErrAccountInactive()
	}
	return e.materialize(rec), nil
}

// RefreshTokens rotates a refresh token into a new pair. The presented token
// is single-use: of N concurrent calls with the same token exactly one
// succeeds.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	pair, rec, err := e.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		obs.ObserveRefresh("failure")
		return nil, err
	}
	obs.ObserveRefresh("success")
	principal := e.materialize(rec)
	ev := audit.NewEvent("token_refresh", e.now())
	ev.Kind = string(rec.Kind)
	ev.PrincipalID = rec.ID
	ev.Success = true
	_ = e.sink.Append(ctx, ev)
	return &LoginResult{Principal: principal.Summary(), Tokens: pair}, nil
}

// Revoke invalidates every outstanding refresh token for the principal.
func (e *Engine) Revoke(ctx context.Context, kind Kind, id string) error {
	if err := e.tokens.Revoke(ctx, kind, id); err != nil {
		return err
	}
	ev := audit.NewEvent("logout", e.now())
	ev.Kind = string(kind)
	ev.PrincipalID = id
	ev.Success = true
	_ = e.sink.Append(ctx, ev)
	return nil
}

// ChangePassword verifies the current credential, enforces password strength,
// persists the new hash, and revokes outstanding refresh tokens so stolen
// sessions do not survive a password change.
func (e *Engine) ChangePassword(ctx context.Context, kind Kind, id, current, next string) error {
	rec, err := e.store.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrPrincipalNotFound()
		}
		return ErrBackendUnavailable()
	}
	if VerifyPassword(rec.PasswordHash, current) != nil {
		e.logAttempt(ctx, kind, id, rec.Email, "", false, ErrTypeInvalidCredentials,
			map[string]any{"action": "password_change"})
		return ErrInvalidCredentials()
	}
	if violations := e.guard.ValidatePasswordStrength(next); len(violations) > 0 {
		return ErrWeakPassword(violations)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return ErrAuthenticationFailed()
	}
	if err := e.store.UpdatePasswordHash(ctx, kind, id, hash); err != nil {
		return ErrBackendUnavailable()
	}
	if err := e.tokens.Revoke(ctx, kind, id); err != nil {
		return err
	}
	ev := audit.NewEvent("password_change", e.now())
	ev.Kind = string(kind)
	ev.PrincipalID = id
	ev.Success = true
	_ = e.sink.Append(ctx, ev)
	return nil
}

// RequireMinRole rejects principals below the given hierarchy rank.
func (e *Engine) RequireMinRole(p Principal, min Kind) error {
	if HierarchyRank(p.Kind) >= HierarchyRank(min) {
		return nil
	}
	return ErrInsufficientPermissions([]string{"role:" + string(min)}, []string{"role:" + string(min)})
}

// RequireTenantBoundary rejects tenant-bound principals reaching for another
// tenant's resources. Admin-level kinds are exempt; an empty requested tenant
// means the resource is not tenant-scoped.
func (e *Engine) RequireTenantBoundary(ctx context.Context, p Principal, tenantID string) error {
	if tenantID == "" || !RespectsTenantBoundary(p.Kind) {
		return nil
	}
	if p.TenantID == tenantID {
		return nil
	}
	ev := audit.NewEvent("tenant_boundary_violation", e.now())
	ev.Kind = string(p.Kind)
	ev.PrincipalID = p.ID
	ev.ErrorKind = string(ErrTypeTenantBoundaryViolation)
	ev.Metadata = map[string]any{"requested_tenant": tenantID, "principal_tenant": p.TenantID}
	_ = e.sink.Append(ctx, ev)
	return ErrTenantBoundaryViolation(tenantID)
}

// RequireContext rejects principals operating from the wrong surface: a
// dashboard kind on a mobile route, an end user on a dashboard route, or a
// passenger on a driver route.
func (e *Engine) RequireContext(p Principal, rc RequestContext) error {
	if rc.Kind.Known() && rc.Kind != p.Kind {
		return ErrContextMismatch("principal kind does not match the requested surface")
	}
	if rc.Platform != PlatformUnknown && rc.Platform != p.CanonicalPlatform() {
		return ErrContextMismatch("principal is not expected on this platform")
	}
	if rc.AppSubtype != SubRoleNone && p.Kind == KindUser && rc.AppSubtype != p.SubRole {
		return ErrContextMismatch("principal sub-role does not match the requested app")
	}
	return nil
}

// RequirePermissions rejects principals missing any permission the route
// needs. Routes with no registered requirement are unrestricted.
func (e *Engine) RequirePermissions(ctx context.Context, p Principal, resourcePath, httpMethod string) error {
	required := RequiredPermissions(resourcePath, httpMethod)
	if len(required) == 0 {
		return nil
	}
	var missing []string
	for _, perm := range required {
		if !p.HasPermission(perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	ev := audit.NewEvent("permission_denied", e.now())
	ev.Kind = string(p.Kind)
	ev.PrincipalID = p.ID
	ev.ErrorKind = string(ErrTypeInsufficientPermissions)
	ev.Metadata = map[string]any{"path": resourcePath, "method": httpMethod, "missing": missing}
	_ = e.sink.Append(ctx, ev)
	return ErrInsufficientPermissions(required, missing)
}

func (e *Engine) materialize(rec *PrincipalRecord) Principal {
	return Principal{
		ID:          rec.ID,
		Email:       rec.Email,
		Name:        rec.Name,
		Kind:        rec.Kind,
		SubRole:     rec.SubRole,
		TenantID:    rec.TenantID,
		Active:      rec.Active,
		Permissions: Permissions(rec.Kind),
		Rank:        HierarchyRank(rec.Kind),
	}
}

func (e *Engine) logAttempt(ctx context.Context, kind Kind, id, email, ip string, success bool, errKind ErrorType, metadata map[string]any) {
	ev := audit.NewEvent("login_attempt", e.now())
	ev.Kind = string(kind)
	ev.PrincipalID = id
	ev.Email = email
	ev.IP = ip
	ev.Success = success
	ev.ErrorKind = string(errKind)
	ev.Metadata = audit.Sanitize(metadata)
	_ = e.sink.Append(ctx, ev)
}

func errorType(err error) ErrorType {
	if typed := AsError(err); typed != nil {
		return typed.Type
	}
	return ErrTypeAuthenticationFailed
}
