package ledger

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
)

// Format is the physical format a release is manufactured in
type Format string

const (
	FormatVinyl    Format = "VINYL"
	FormatCD       Format = "CD"
	FormatCassette Format = "CASSETTE"
)

// String returns the string representation of Format
func (f Format) String() string {
	return string(f)
}

// IsValid returns true if the format is one of the supported physical formats
func (f Format) IsValid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette:
		return true
	}
	return false
}

// ParseFormat normalizes a format name, e.g. "vinyl" -> FormatVinyl
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", shared.NewInvalidRequest("unsupported format %q", s)
	}
	return f, nil
}

// ProductKey identifies a release in one format. Sales and returns resolve
// production runs and allocations through it.
type ProductKey struct {
	ReleaseID uuid.UUID
	Format    Format
}

// Less orders keys by release then format. Lock acquisition follows this order.
func (k ProductKey) Less(other ProductKey) bool {
	if c := bytes.Compare(k.ReleaseID[:], other.ReleaseID[:]); c != 0 {
		return c < 0
	}
	return k.Format < other.Format
}
