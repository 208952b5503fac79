package auth

import (
	"net/http"
	"sort"
	"strings"
)

// PermissionWildcard grants every permission and resource.
const PermissionWildcard = "*"

// AccessControlConfig is one static access-control entry per principal kind.
// Loaded once at process start, immutable afterwards.
type AccessControlConfig struct {
	AccessibleResources []string
	ManageableResources []string
	TenantBound         bool
	Permissions         []string
	HierarchyRank       int
}

// accessControl is the single source of truth for kind-level access. Driver
// and Passenger share the KindUser entry and therefore the same rank.
var accessControl = map[Kind]AccessControlConfig{
	KindSuperAdmin: {
		AccessibleResources: []string{PermissionWildcard},
		ManageableResources: []string{PermissionWildcard},
		TenantBound:         false,
		Permissions:         []string{PermissionWildcard},
		HierarchyRank:       4,
	},
	KindAdmin: {
		AccessibleResources: []string{"organizations", "users", "drivers", "vehicles", "routes", "trips", "reports"},
		ManageableResources: []string{"organizations", "users", "drivers", "vehicles", "routes"},
		TenantBound:         false,
		Permissions: []string{
			"organizations.view", "organizations.manage",
			"users.view", "users.manage",
			"drivers.view", "drivers.manage",
			"vehicles.view", "routes.view", "trips.view", "reports.view",
		},
		HierarchyRank: 3,
	},
	KindOrganization: {
		AccessibleResources: []string{"vehicles", "drivers", "routes", "trips", "discounts", "reports"},
		ManageableResources: []string{"vehicles", "drivers", "routes", "trips", "discounts"},
		TenantBound:         true,
		Permissions: []string{
			"vehicles.view", "vehicles.manage",
			"drivers.view", "drivers.manage",
			"routes.view", "routes.manage",
			"trips.view", "trips.manage",
			"discounts.manage", "reports.view",
		},
		HierarchyRank: 2,
	},
	KindUser: {
		AccessibleResources: []string{"routes", "trips", "profile"},
		ManageableResources: []string{"profile"},
		TenantBound:         true,
		Permissions:         []string{"routes.view", "trips.view", "profile.manage"},
		HierarchyRank:       1,
	},
}

// routePermission maps a resource path prefix and HTTP method to the
// permissions required beyond the kind-level checks. Absence of a mapping
// means no finer-grained restriction applies.
type routePermission struct {
	prefix string
	method string
	perms  []string
}

var routePermissions = []routePermission{
	{"/v1/organizations", http.MethodPost, []string{"organizations.manage"}},
	{"/v1/organizations", http.MethodDelete, []string{"organizations.manage"}},
	{"/v1/organizations", http.MethodGet, []string{"organizations.view"}},
	{"/v1/users", http.MethodPost, []string{"users.manage"}},
	{"/v1/users", http.MethodGet, []string{"users.view"}},
	{"/v1/drivers", http.MethodPost, []string{"drivers.manage"}},
	{"/v1/drivers", http.MethodGet, []string{"drivers.view"}},
	{"/v1/vehicles", http.MethodPost, []string{"vehicles.manage"}},
	{"/v1/vehicles", http.MethodPut, []string{"vehicles.manage"}},
	{"/v1/vehicles", http.MethodDelete, []string{"vehicles.manage"}},
	{"/v1/vehicles", http.MethodGet, []string{"vehicles.view"}},
	{"/v1/routes", http.MethodPost, []string{"routes.manage"}},
	{"/v1/routes", http.MethodGet, []string{"routes.view"}},
	{"/v1/trips", http.MethodGet, []string{"trips.view"}},
	{"/v1/discounts", http.MethodPost, []string{"discounts.manage"}},
}

// Permissions returns the flat permission list for a kind. Unknown kinds
// yield nil.
func Permissions(kind Kind) []string {
	entry, ok := accessControl[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(entry.Permissions))
	copy(out, entry.Permissions)
	sort.Strings(out)
	return out
}

// HasPermission reports whether the kind's permission list contains the exact
// permission or the wildcard.
func HasPermission(kind Kind, permission string) bool {
	entry, ok := accessControl[kind]
	if !ok {
		return false
	}
	return containsOrWildcard(entry.Permissions, permission)
}

// CanAccess reports whether the kind may read the named resource.
func CanAccess(kind Kind, resource string) bool {
	entry, ok := accessControl[kind]
	if !ok {
		return false
	}
	return containsOrWildcard(entry.AccessibleResources, resource)
}

// CanManage reports whether the kind may mutate the named resource.
func CanManage(kind Kind, resource string) bool {
	entry, ok := accessControl[kind]
	if !ok {
		return false
	}
	return containsOrWildcard(entry.ManageableResources, resource)
}

// HierarchyRank returns the total order used for "at least as privileged as"
// checks. Unknown kinds rank zero, below every real kind.
func HierarchyRank(kind Kind) int {
	return accessControl[kind].HierarchyRank
}

// RespectsTenantBoundary reports whether the kind is confined to its own
// tenant's data.
func RespectsTenantBoundary(kind Kind) bool {
	return accessControl[kind].TenantBound
}

// RequiredPermissions returns the permissions required for a resource path
// and HTTP method. An empty result means no finer-grained check applies; it
// must not be read as forbidden.
func RequiredPermissions(resourcePath, httpMethod string) []string {
	var best *routePermission
	for i := range routePermissions {
		rp := &routePermissions[i]
		if rp.method != httpMethod {
			continue
		}
		if !matchesPrefix(resourcePath, rp.prefix) {
			continue
		}
		if best == nil || len(rp.prefix) > len(best.prefix) {
			best = rp
		}
	}
	if best == nil {
		return nil
	}
	out := make([]string, len(best.perms))
	copy(out, best.perms)
	return out
}

func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

func containsOrWildcard(list []string, key string) bool {
	for _, item := range list {
		if item == PermissionWildcard || item == key {
			return true
		}
	}
	return false
}
