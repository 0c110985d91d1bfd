package capability

import (
	"errors"
	"fmt"
	"strings"

	"carecompanion/pkg"
)

// ErrInvalidLabel marks classifier output outside the closed label set.
var ErrInvalidLabel = errors.New("invalid route label")

// ParseLabel validates raw classifier output against the closed routing
// set. Callers branch on the returned error explicitly; there is no
// implicit fallback here.
func ParseLabel(raw string) (pkg.RouteLabel, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, `"'.`)

	label := pkg.RouteLabel(cleaned)
	if !label.Valid() {
		return pkg.RouteUnset, fmt.Errorf("%w: %q", ErrInvalidLabel, raw)
	}
	return label, nil
}
