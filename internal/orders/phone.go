package orders

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// PhoneNormalizer rewrites phone numbers to E.164 so that formatting-only
// edits do not show up as changes.
type PhoneNormalizer struct {
	region string
}

func NewPhoneNormalizer(region string) *PhoneNormalizer {
	return &PhoneNormalizer{region: strings.ToUpper(region)}
}

// Normalize keeps input it cannot parse as a valid number, trimmed.
func (n *PhoneNormalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, err := libphonenumber.Parse(raw, n.region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return raw
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}
