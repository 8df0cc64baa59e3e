package session

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"default session", "main", false},
		{"digits", "work123", false},
		{"hyphen", "team-room", false},
		{"underscore", "team_room", false},
		{"single char", "a", false},
		{"max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"uppercase", "Main", true},
		{"leading hyphen", "-room", true},
		{"leading underscore", "_room", true},
		{"space", "team room", true},
		{"dot", "team.room", true},
		{"path separator", "team/room", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
