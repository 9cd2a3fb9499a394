package util

import (
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var reParenPrefix = regexp.MustCompile(`(.*)\(`)

// ProcessID normalizes a vertex id: spaces become underscores, slashes are
// dropped and anything from the last opening parenthesis on is cut off.
// Quoted empty strings normalize to "".
func ProcessID(id string) string {
	id = strings.ReplaceAll(id, " ", "_")
	id = strings.ReplaceAll(id, "/", "")
	if m := reParenPrefix.FindStringSubmatch(id); m != nil {
		id = m[1]
	}
	if id == "''" || id == `""` {
		return ""
	}
	return strings.TrimSpace(id)
}

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestID returns a short random id used to key run reports.
func NewRequestID() string {
	id, err := gonanoid.Generate(requestIDAlphabet, 16)
	if err != nil {
		return gonanoid.Must()
	}
	return id
}
