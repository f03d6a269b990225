package tokens

import (
	"testing"
	"time"

	"github.com/duetcast/controller/internal/models"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"spectator", models.RoleSpectator},
		{"Spectator", models.RoleSpectator},
		{"viewer", models.RoleSpectator},
		{"VIEWER", models.RoleSpectator},
		{" spectator ", models.RoleSpectator},
		{"participant", models.RoleParticipant},
		{"host", models.RoleParticipant},
		{"", models.RoleParticipant},
		{"anything-else", models.RoleParticipant},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMintValidation(t *testing.T) {
	i := NewIssuer("key", "secret-long-enough-to-sign-with", time.Hour)

	if _, err := i.Mint("", "alice", "", ""); err == nil {
		t.Fatal("missing room name should fail")
	}
	if _, err := i.Mint("room", "", "", ""); err == nil {
		t.Fatal("missing identity should fail")
	}
}

func TestMintProducesToken(t *testing.T) {
	i := NewIssuer("apikey", "secret-long-enough-to-sign-with", time.Hour)

	for _, role := range []string{models.RoleParticipant, models.RoleSpectator} {
		tok, err := i.Mint("debate-42", "alice", `{"seat":1}`, role)
		if err != nil {
			t.Fatalf("Mint(%s): %v", role, err)
		}
		if tok == "" {
			t.Fatalf("Mint(%s): empty token", role)
		}
	}
}
