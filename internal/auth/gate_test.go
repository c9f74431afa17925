package auth

import (
	"testing"
)

var testRoutes = Routes{Login: "/login", Landing: "/dashboard"}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		user     *User
		required Requirement
		want     Decision
	}{
		{
			name:     "no user redirects to login with return location",
			user:     nil,
			required: AnyRole(),
			want:     Decision{Kind: Redirect, Target: "/login", ReturnTo: "/expos/42"},
		},
		{
			name:     "no user redirects even when role required",
			user:     nil,
			required: RequireRole(RoleAttendee),
			want:     Decision{Kind: Redirect, Target: "/login", ReturnTo: "/expos/42"},
		},
		{
			name:     "any role admits attendee",
			user:     &User{ID: "u1", Role: RoleAttendee},
			required: AnyRole(),
			want:     Decision{Kind: Allow},
		},
		{
			name:     "exact role match",
			user:     &User{ID: "u1", Role: RoleOrganizer},
			required: RequireRole(RoleOrganizer),
			want:     Decision{Kind: Allow},
		},
		{
			name:     "exhibitor denied organizer view",
			user:     &User{ID: "u1", Role: RoleExhibitor},
			required: RequireRole(RoleOrganizer),
			want:     Decision{Kind: Redirect, Target: "/dashboard"},
		},
		{
			name:     "exhibitor in listed set",
			user:     &User{ID: "u1", Role: RoleExhibitor},
			required: RequireAnyOf(RoleAdmin, RoleExhibitor),
			want:     Decision{Kind: Allow},
		},
		{
			name:     "attendee not in listed set",
			user:     &User{ID: "u1", Role: RoleAttendee},
			required: RequireAnyOf(RoleOrganizer, RoleExhibitor),
			want:     Decision{Kind: Redirect, Target: "/dashboard"},
		},
		{
			name:     "admin overrides single role",
			user:     &User{ID: "u1", Role: RoleAdmin},
			required: RequireRole(RoleAttendee),
			want:     Decision{Kind: Allow},
		},
		{
			name:     "unrecognised role from backend only passes AnyRole",
			user:     &User{ID: "u1", Role: Role("sponsor")},
			required: RequireRole(RoleAttendee),
			want:     Decision{Kind: Redirect, Target: "/dashboard"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.user, tt.required, "/expos/42", testRoutes)
			if got != tt.want {
				t.Errorf("Authorize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Admin passes every requirement that can be built.
func TestAuthorize_AdminAlwaysAllowed(t *testing.T) {
	admin := &User{ID: "root", Role: RoleAdmin}

	reqs := []Requirement{AnyRole()}
	for _, r := range Roles {
		reqs = append(reqs, RequireRole(r))
	}
	// Every non-empty subset of Roles.
	for mask := 1; mask < 1<<len(Roles); mask++ {
		var set []Role
		for i, r := range Roles {
			if mask&(1<<i) != 0 {
				set = append(set, r)
			}
		}
		reqs = append(reqs, RequireAnyOf(set...))
	}

	for _, req := range reqs {
		if d := Authorize(admin, req, "/x", testRoutes); !d.Allowed() {
			t.Errorf("Authorize(admin, %s) = %+v, want Allow", req, d)
		}
	}
}

func TestAuthorize_HasNoSideEffects(t *testing.T) {
	user := &User{ID: "u1", Role: RoleExhibitor}
	req := RequireAnyOf(RoleOrganizer, RoleExhibitor)
	before := req.Roles()

	for i := 0; i < 3; i++ {
		if d := Authorize(user, req, "/booths", testRoutes); !d.Allowed() {
			t.Fatalf("call %d: Authorize() = %+v", i, d)
		}
	}

	if user.Role != RoleExhibitor || len(req.Roles()) != len(before) {
		t.Error("Authorize() mutated its inputs")
	}
}

func TestRequirement_PanicsOnMisuse(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"unknown role", func() { RequireRole(Role("superuser")) }},
		{"empty set", func() { RequireAnyOf() }},
		{"unknown role in set", func() { RequireAnyOf(RoleAdmin, Role("")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestRequirement_String(t *testing.T) {
	if got := AnyRole().String(); got != "any" {
		t.Errorf("AnyRole().String() = %q", got)
	}
	if got := RequireAnyOf(RoleOrganizer, RoleExhibitor).String(); got != "organizer|exhibitor" {
		t.Errorf("String() = %q", got)
	}
	if AnyRole().Roles() != nil {
		t.Error("AnyRole().Roles() should be nil")
	}
}

func TestDecision_Location(t *testing.T) {
	tests := []struct {
		name string
		d    Decision
		want string
	}{
		{"allow has no location", Decision{Kind: Allow}, ""},
		{"landing", Decision{Kind: Redirect, Target: "/dashboard"}, "/dashboard"},
		{"login with return", Decision{Kind: Redirect, Target: "/login", ReturnTo: "/expos/1?tab=booths"}, "/login?returnTo=%2Fexpos%2F1%3Ftab%3Dbooths"},
		{"target with query", Decision{Kind: Redirect, Target: "/login?via=guard", ReturnTo: "/a"}, "/login?via=guard&returnTo=%2Fa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Location(); got != tt.want {
				t.Errorf("Location() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecisionKind_String(t *testing.T) {
	for kind, want := range map[DecisionKind]string{Allow: "allow", Redirect: "redirect", Pending: "pending", DecisionKind(9): "DecisionKind(9)"} {
		if got := kind.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestDefaultRoutes(t *testing.T) {
	if r := DefaultRoutes(); r.Login != "/login" || r.Landing != "/dashboard" {
		t.Errorf("DefaultRoutes() = %+v", r)
	}
}
