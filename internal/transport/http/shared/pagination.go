package shared

import (
	"net/http"
	"strconv"
)

// Pagination is a resolved limit/offset window for list endpoints.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads ?limit= and either ?offset= or a 1-based
// ?page=. Offset wins when both are present. Bad values fall back to
// the defaults and limit is clamped to maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	q := r.URL.Query()
	p := Pagination{Limit: positiveInt(q.Get("limit"), defaultLimit)}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	switch {
	case q.Get("offset") != "":
		if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
			p.Offset = v
		}
	case q.Get("page") != "":
		p.Offset = (positiveInt(q.Get("page"), 1) - 1) * p.Limit
	}
	return p
}

func positiveInt(raw string, fallback int) int {
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}
