package auth

import "time"

// Kind identifies one of the four principal kinds of the platform.
type Kind string

const (
	KindSuperAdmin   Kind = "superadmin"
	KindAdmin        Kind = "admin"
	KindOrganization Kind = "organization"
	KindUser         Kind = "user"
)

// Known returns whether the kind is one of the four platform kinds.
func (k Kind) Known() bool {
	switch k {
	case KindSuperAdmin, KindAdmin, KindOrganization, KindUser:
		return true
	}
	return false
}

// SubRole refines KindUser into its two end-user roles.
type SubRole string

const (
	SubRoleNone      SubRole = ""
	SubRoleDriver    SubRole = "driver"
	SubRolePassenger SubRole = "passenger"
)

// Platform is the surface a request originates from.
type Platform string

const (
	PlatformUnknown Platform = ""
	PlatformWeb     Platform = "web"
	PlatformMobile  Platform = "mobile"
)

// PrincipalRecord is the row shape returned by the principal store. It carries
// the credential hash and the pointer to the currently valid refresh token.
type PrincipalRecord struct {
	ID               string
	Email            string
	Name             string
	Kind             Kind
	SubRole          SubRole
	TenantID         string
	PasswordHash     string
	Active           bool
	RefreshTokenHash string
	LastLoginAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Principal is the per-request identity materialized from a verified token
// plus a fresh store lookup. It is never persisted.
type Principal struct {
	ID          string
	Email       string
	Name        string
	Kind        Kind
	SubRole     SubRole
	TenantID    string
	Active      bool
	Permissions []string
	Rank        int
}

// HasPermission reports whether the principal's snapshot contains the
// permission. A literal "*" grants everything.
func (p Principal) HasPermission(key string) bool {
	for _, perm := range p.Permissions {
		if perm == PermissionWildcard || perm == key {
			return true
		}
	}
	return false
}

// CanonicalPlatform maps the principal kind and sub-role to the platform it
// is expected to operate from. Dashboard kinds are web; end users are mobile.
func (p Principal) CanonicalPlatform() Platform {
	if p.Kind == KindUser {
		return PlatformMobile
	}
	if p.Kind.Known() {
		return PlatformWeb
	}
	return PlatformUnknown
}

// TokenPair holds freshly issued access and refresh tokens with their
// expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// PrincipalSummary is the client-facing subset of a principal returned by
// login responses.
type PrincipalSummary struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Kind     Kind    `json:"kind"`
	SubRole  SubRole `json:"sub_role,omitempty"`
	TenantID string  `json:"tenant_id,omitempty"`
}

// Summary trims a principal down to its client-facing fields.
func (p Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:       p.ID,
		Email:    p.Email,
		Name:     p.Name,
		Kind:     p.Kind,
		SubRole:  p.SubRole,
		TenantID: p.TenantID,
	}
}
