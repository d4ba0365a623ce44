package shared

import (
	"strings"

	"github.com/google/uuid"
)

// NewDocumentNumber returns a prefixed, upper-case document number such as PO-1F3A9C0D2B7E.
func NewDocumentNumber(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(raw[:12])
}
