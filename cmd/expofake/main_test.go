package main

import (
	"testing"

	"github.com/nerrad567/expo-client-core/internal/auth"
	"github.com/nerrad567/expo-client-core/internal/fakebackend"
)

func TestSeedUser(t *testing.T) {
	tests := []struct {
		spec     string
		wantRole auth.Role
		wantErr  bool
	}{
		{"ann@expo.test:secret1", auth.RoleAttendee, false},
		{"olga@expo.test:secret1:organizer", auth.RoleOrganizer, false},
		{"root@expo.test:secret1:admin", auth.RoleAdmin, false},
		{"eve@expo.test:secret1:janitor", "", true},
		{"nopassword@expo.test", "", true},
		{":secret1", "", true},
	}

	srv := fakebackend.New(fakebackend.Options{})
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			u, err := seedUser(srv, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("seedUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if u.Role != tt.wantRole {
				t.Errorf("role = %q, want %q", u.Role, tt.wantRole)
			}
			if _, ok := srv.User(u.ID); !ok {
				t.Error("seeded account not stored")
			}
		})
	}
}
