package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID builds a timestamp-plus-random identifier. The random suffix
// keeps concurrent runs within the same second from colliding.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), suffix)
}
