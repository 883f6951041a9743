package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

const (
	minCapacity     = 1
	maxCapacity     = 50
	minDelayMinutes = 1
	maxDelayMinutes = 480
	minNameLen      = 2
	maxNameLen      = 100
)

// decodeBody reads a JSON body into dst and writes the 4xx itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return true
	case isBodyTooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "Request body is required")
	default:
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	}
	return false
}

// fieldErrors collects messages in field order and joins them like a
// schema validator would.
type fieldErrors []string

func (fe *fieldErrors) add(format string, args ...any) {
	*fe = append(*fe, fmt.Sprintf(format, args...))
}

func (fe fieldErrors) write(w http.ResponseWriter) bool {
	if len(fe) == 0 {
		return false
	}
	writeError(w, http.StatusBadRequest, strings.Join(fe, ", "))
	return true
}

func (fe *fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		fe.add("%q is required", field)
	}
}

func (fe *fieldErrors) name(field, value string) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		fe.add("%q is required", field)
	case n < minNameLen || n > maxNameLen:
		fe.add("%q length must be between %d and %d characters", field, minNameLen, maxNameLen)
	}
}

func (fe *fieldErrors) timeLabel(field, value string) {
	if !allocation.ValidTimeLabel(value) {
		fe.add("%q must be in HH:MM format", field)
	}
}

func (fe *fieldErrors) intRange(field string, value, lo, hi int) {
	if value < lo || value > hi {
		fe.add("%q must be between %d and %d", field, lo, hi)
	}
}

func (fe *fieldErrors) priority(field, value string) allocation.Priority {
	p, err := allocation.ParsePriority(value)
	if err != nil {
		names := make([]string, 0, len(allocation.Priorities()))
		for _, p := range allocation.Priorities() {
			names = append(names, string(p))
		}
		fe.add("%q must be one of [%s]", field, strings.Join(names, ", "))
	}
	return p
}

func (fe *fieldErrors) status(field, value string) allocation.TokenStatus {
	st, err := allocation.ParseStatus(value)
	if err != nil {
		fe.add("%q must be one of [booked, cancelled, completed, no_show]", field)
	}
	return st
}
