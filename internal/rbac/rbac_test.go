package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member post", role: RoleMember, action: ActionPost, allow: true},
		{name: "member share", role: RoleMember, action: ActionShare, allow: true},
		{name: "member manage", role: RoleMember, action: ActionManage, allow: false},
		{name: "admin manage", role: RoleAdmin, action: ActionManage, allow: true},
		{name: "unknown role read", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Errorf("Normalize(admin) = %q", got)
	}
	if got := Normalize(""); got != RoleMember {
		t.Errorf("Normalize(empty) = %q, want member", got)
	}
	if got := Normalize("superuser"); got != RoleMember {
		t.Errorf("Normalize(superuser) = %q, want member", got)
	}
}
