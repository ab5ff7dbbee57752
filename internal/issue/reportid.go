package issue

import (
	"strings"

	"github.com/google/uuid"
)

const reportIDLen = 10

// NewReportID returns a shareable reference such as "PR-3F9A0C1B7E".
// 40 random bits; callers still retry on the unique constraint.
func NewReportID() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PR-" + strings.ToUpper(s[:reportIDLen])
}

// ReportIDFunc lets tests force collisions.
type ReportIDFunc func() string
