package auth

import (
	"net/http"
	"testing"
)

func TestHierarchyRankOrdering(t *testing.T) {
	order := []Kind{KindUser, KindOrganization, KindAdmin, KindSuperAdmin}
	for i := 1; i < len(order); i++ {
		lower, higher := order[i-1], order[i]
		if HierarchyRank(lower) >= HierarchyRank(higher) {
			t.Fatalf("expected rank(%s) < rank(%s), got %d >= %d",
				lower, higher, HierarchyRank(lower), HierarchyRank(higher))
		}
	}
	if HierarchyRank(KindSuperAdmin) != 4 {
		t.Fatalf("superadmin rank = %d, want 4", HierarchyRank(KindSuperAdmin))
	}
	if HierarchyRank(Kind("ghost")) != 0 {
		t.Fatalf("unknown kind should rank 0")
	}
}

func TestWildcardPermissions(t *testing.T) {
	if !HasPermission(KindSuperAdmin, "anything.at.all") {
		t.Fatal("wildcard should grant any permission")
	}
	if !CanAccess(KindSuperAdmin, "discounts") || !CanManage(KindSuperAdmin, "discounts") {
		t.Fatal("wildcard should grant any resource")
	}
}

func TestKindPermissions(t *testing.T) {
	cases := []struct {
		kind Kind
		perm string
		want bool
	}{
		{KindAdmin, "organizations.manage", true},
		{KindAdmin, "discounts.manage", false},
		{KindOrganization, "vehicles.manage", true},
		{KindOrganization, "users.manage", false},
		{KindUser, "trips.view", true},
		{KindUser, "vehicles.manage", false},
		{Kind("ghost"), "trips.view", false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.kind, tc.perm); got != tc.want {
			t.Fatalf("HasPermission(%s, %s)=%v, want %v", tc.kind, tc.perm, got, tc.want)
		}
	}
}

func TestResourceLists(t *testing.T) {
	if CanManage(KindUser, "trips") {
		t.Fatal("end users must not manage trips")
	}
	if !CanAccess(KindUser, "trips") {
		t.Fatal("end users read trips")
	}
	if !CanManage(KindOrganization, "drivers") {
		t.Fatal("organizations manage their drivers")
	}
	if CanAccess(Kind("ghost"), "trips") {
		t.Fatal("unknown kind should have no access")
	}
}

func TestTenantBoundaryFlags(t *testing.T) {
	for kind, want := range map[Kind]bool{
		KindSuperAdmin:   false,
		KindAdmin:        false,
		KindOrganization: true,
		KindUser:         true,
	} {
		if got := RespectsTenantBoundary(kind); got != want {
			t.Fatalf("RespectsTenantBoundary(%s)=%v, want %v", kind, got, want)
		}
	}
}

func TestRequiredPermissions(t *testing.T) {
	perms := RequiredPermissions("/v1/vehicles/veh-12", http.MethodDelete)
	if len(perms) != 1 || perms[0] != "vehicles.manage" {
		t.Fatalf("unexpected perms: %v", perms)
	}

	perms = RequiredPermissions("/v1/vehicles", http.MethodGet)
	if len(perms) != 1 || perms[0] != "vehicles.view" {
		t.Fatalf("unexpected perms: %v", perms)
	}

	// No mapping means no finer-grained restriction, not forbidden.
	if perms := RequiredPermissions("/v1/unmapped", http.MethodGet); len(perms) != 0 {
		t.Fatalf("expected empty perms for unmapped route, got %v", perms)
	}

	// Prefix must match on a segment boundary.
	if perms := RequiredPermissions("/v1/vehiclesextra", http.MethodGet); len(perms) != 0 {
		t.Fatalf("expected no match for partial segment, got %v", perms)
	}
}
