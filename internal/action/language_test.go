package action

import (
	"errors"
	"strings"
	"testing"
)

func TestCodeCommand(t *testing.T) {
	tests := []struct {
		language string
		code     string
		prefix   string
	}{
		{"python", "print('hi')", "python3 -c "},
		{"Python", "print('hi')", "python3 -c "},
		{"javascript", "console.log(1)", "node -e "},
		{"node", "console.log(1)", "node -e "},
		{"bash", "echo hi", "bash -c "},
		{"sh", "echo hi", "sh -c "},
	}
	for _, tt := range tests {
		cmd, err := codeCommand(tt.language, tt.code)
		if err != nil {
			t.Errorf("codeCommand(%q): %v", tt.language, err)
			continue
		}
		if !strings.HasPrefix(cmd, tt.prefix) {
			t.Errorf("codeCommand(%q) = %q, want prefix %q", tt.language, cmd, tt.prefix)
		}
	}
}

func TestCodeCommandUnsupported(t *testing.T) {
	_, err := codeCommand("cobol", "x")
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	var unsupported ErrUnsupportedLanguage
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %T, want ErrUnsupportedLanguage", err)
	}
	if unsupported.Language != "cobol" {
		t.Errorf("Language = %q, want cobol", unsupported.Language)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "'plain'"},
		{"has space", "'has space'"},
		{"don't", `'don'\''t'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
