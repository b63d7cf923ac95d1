package http

import (
	"net/http"
	"strconv"
	"strings"
)

// PathString returns the named path wildcard, trimmed. The bool is false
// when it is blank.
func PathString(r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.PathValue(name))
	return v, v != ""
}

// PathInt64 parses the named path wildcard as a positive integer.
func PathInt64(r *http.Request, name string) (int64, bool) {
	raw, ok := PathString(r, name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
