package action

import (
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedLanguage is returned when run_code is asked for a language
// with no registered interpreter.
type ErrUnsupportedLanguage struct {
	Language string
}

func (e ErrUnsupportedLanguage) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

// interpreters maps a language name to the executable and flag that take
// source text as an inline argument.
var interpreters = map[string][]string{
	"python":     {"python3", "-c"},
	"python3":    {"python3", "-c"},
	"javascript": {"node", "-e"},
	"node":       {"node", "-e"},
	"bash":       {"bash", "-c"},
	"sh":         {"sh", "-c"},
}

// codeCommand wraps a source snippet in the interpreter invocation for
// language. The snippet is single-quoted for the shell the sandbox runs
// commands through.
func codeCommand(language, code string) (string, error) {
	spec, ok := interpreters[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return "", ErrUnsupportedLanguage{Language: language}
	}
	return strings.Join(spec, " ") + " " + shellQuote(code), nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes so
// the result is safe as one sh word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SupportedLanguages lists the language names run_code accepts, sorted.
func SupportedLanguages() []string {
	out := make([]string, 0, len(interpreters))
	for name := range interpreters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
