package rbac

import (
	"errors"
	"testing"
)

func TestAuthorizer(t *testing.T) {
	authz := NewAuthorizer([]string{" Admin@Astrixo.com ", "", "ops@astrixo.com"})
	cases := []struct {
		name  string
		email string
		allow bool
	}{
		{name: "exact", email: "ops@astrixo.com", allow: true},
		{name: "case and space", email: "  ADMIN@astrixo.COM", allow: true},
		{name: "student", email: "aluno@example.com", allow: false},
		{name: "empty", email: "", allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := authz.IsAdmin(tc.email); got != tc.allow {
				t.Fatalf("IsAdmin(%q) = %v, want %v", tc.email, got, tc.allow)
			}
			err := authz.Require(tc.email)
			if tc.allow != (err == nil) {
				t.Fatalf("Require(%q) = %v", tc.email, err)
			}
			if err != nil && !errors.Is(err, ErrNotAdmin) {
				t.Fatalf("expected ErrNotAdmin, got %v", err)
			}
		})
	}
}

func TestRoleFor(t *testing.T) {
	authz := NewAuthorizer([]string{"admin@astrixo.com"})
	if authz.RoleFor("admin@astrixo.com") != RoleAdmin {
		t.Fatal("expected admin role")
	}
	if authz.RoleFor("bia@example.com") != RoleStudent {
		t.Fatal("expected student role")
	}
	var none *Authorizer
	if none.IsAdmin("admin@astrixo.com") {
		t.Fatal("nil authorizer must deny")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin || Normalize("editor") != RoleStudent {
		t.Fatal("unexpected normalization")
	}
}
