package dispatch

import (
	"math"
	"strconv"
	"time"

	"github.com/redlite/redlite/internal/apperr"
)

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, apperr.NotInteger()
	}
	return n, nil
}

func parseIntDefault(b []byte, def int) (int, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return def, apperr.NotInteger()
	}
	return int(n), nil
}

func parseFloat(b []byte) (float64, error) {
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, apperr.NotFloat()
	}
	// strconv.ParseFloat accepts "nan"/"NaN" despite it never being a valid
	// score or increment; scores must stay totally ordered for ORDER BY.
	if math.IsNaN(n) {
		return 0, apperr.NotFloat()
	}
	return n, nil
}

// nowMillis is reused by handlers that compute absolute expiry deadlines
// from a relative EX/PX argument.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// formatFloat renders a float reply the way Redis does: shortest
// round-tripping decimal, no exponent notation.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func apperrSyntax() error {
	return apperr.Syntax()
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
