package auth

import (
	"context"
	"strings"
)

// RequestContext is the resolved (principal kind, platform, app subtype) a
// request claims to operate under. Kind stays empty when the signals only
// identify a platform.
type RequestContext struct {
	Kind       Kind
	Platform   Platform
	AppSubtype SubRole
}

const (
	dashboardSegment = "dashboard"
	mobileSegment    = "mobile"
)

// ResolveContext derives the request context from the path, the explicit
// X-App-Context header value, a legacy body context field, and the user
// agent. Rules are checked in order; the first match wins.
func ResolveContext(path, headerContext, bodyContext, userAgent string) (RequestContext, error) {
	segments := splitPath(path)

	// 1. Web dashboard path: /…/dashboard/{superadmin|admin|organization}/…
	if idx := indexSegment(segments, dashboardSegment); idx >= 0 {
		rc := RequestContext{Platform: PlatformWeb}
		if idx+1 < len(segments) {
			switch segments[idx+1] {
			case "superadmin", "super-admin":
				rc.Kind = KindSuperAdmin
			case "admin":
				rc.Kind = KindAdmin
			case "organization", "org":
				rc.Kind = KindOrganization
			}
		}
		return rc, nil
	}

	// 2. Mobile path: /…/mobile/{driver|passenger}/…
	if idx := indexSegment(segments, mobileSegment); idx >= 0 {
		rc := RequestContext{Platform: PlatformMobile, Kind: KindUser}
		if idx+1 < len(segments) {
			switch segments[idx+1] {
			case "driver":
				rc.AppSubtype = SubRoleDriver
			case "passenger":
				rc.AppSubtype = SubRolePassenger
			}
		}
		return rc, nil
	}

	// 3. Explicit context from header, then legacy body field.
	for _, value := range []string{headerContext, bodyContext} {
		if rc, ok := contextFromValue(value); ok {
			return rc, nil
		}
	}

	// 4. User-agent sniffing only identifies the platform.
	if sniffMobileAgent(userAgent) {
		return RequestContext{Platform: PlatformMobile}, nil
	}

	return RequestContext{}, ErrContextUnresolved()
}

// ValidateContext confirms the resolved context agrees with the role a
// request body declares. A declared role that contradicts the app subtype or
// the platform is a mismatch, never silently corrected.
func ValidateContext(rc RequestContext, declaredRole SubRole) error {
	if declaredRole == SubRoleNone {
		return nil
	}
	if rc.Platform == PlatformWeb {
		return ErrContextMismatch("end-user role declared on a dashboard request")
	}
	if rc.AppSubtype != SubRoleNone && rc.AppSubtype != declaredRole {
		return ErrContextMismatch("declared role " + string(declaredRole) +
			" does not match " + string(rc.AppSubtype) + " app")
	}
	return nil
}

func contextFromValue(value string) (RequestContext, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "web", "dashboard":
		return RequestContext{Platform: PlatformWeb}, true
	case "mobile-driver", "driver":
		return RequestContext{Platform: PlatformMobile, Kind: KindUser, AppSubtype: SubRoleDriver}, true
	case "mobile-passenger", "passenger":
		return RequestContext{Platform: PlatformMobile, Kind: KindUser, AppSubtype: SubRolePassenger}, true
	case "mobile":
		return RequestContext{Platform: PlatformMobile, Kind: KindUser}, true
	}
	return RequestContext{}, false
}

func sniffMobileAgent(userAgent string) bool {
	for _, marker := range []string{"Mobile", "Android", "iOS"} {
		if strings.Contains(userAgent, marker) {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, s := range raw {
		if s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func indexSegment(segments []string, want string) int {
	for i, s := range segments {
		if s == want {
			return i
		}
	}
	return -1
}

type principalContextKey struct{}
type tokenContextKey struct{}
type requestContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithRequestContext stores the resolved request context.
func ContextWithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFromContext returns the resolved request context if present.
func RequestContextFromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	v, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return v, ok
}
