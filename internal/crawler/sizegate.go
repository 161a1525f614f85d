package crawler

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SizeRejectedError reports a declared size over the configured ceiling.
type SizeRejectedError struct {
	Declared string
	LimitMB  float64
}

func (e *SizeRejectedError) Error() string {
	return fmt.Sprintf("declared size %q exceeds the %g MB limit", e.Declared, e.LimitMB)
}

// SizeGate validates a human-readable size string against a megabyte ceiling
// before any download is attempted.
type SizeGate struct {
	limitMB float64
	logger  *zap.Logger
}

// NewSizeGate builds a gate with the given ceiling in megabytes.
func NewSizeGate(limitMB float64, logger *zap.Logger) *SizeGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SizeGate{limitMB: limitMB, logger: logger}
}

// Check returns a *SizeRejectedError when the declared size is over the
// limit. Gigabyte sizes are rejected unconditionally. A megabyte string
// whose numeric portion cannot be parsed is accepted: blocking the pipeline
// on an unexpected size format is worse than downloading an oversized file,
// so the gate deliberately fails open.
func (g *SizeGate) Check(declared string) error {
	if strings.Contains(declared, "GB") {
		return &SizeRejectedError{Declared: declared, LimitMB: g.limitMB}
	}
	if !strings.Contains(declared, "MB") {
		return nil
	}
	size, err := strconv.ParseFloat(numericPortion(declared), 64)
	if err != nil {
		g.logger.Warn("could not parse declared size, allowing download",
			zap.String("declared", declared))
		return nil
	}
	if size > g.limitMB {
		return &SizeRejectedError{Declared: declared, LimitMB: g.limitMB}
	}
	return nil
}

func numericPortion(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
