package dedup

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer rewrites decoded text before it becomes an identity.
type Normalizer interface {
	Normalize(s string) string
}

type unicodeForm struct{ form norm.Form }

func (u unicodeForm) Normalize(s string) string { return u.form.String(s) }

// NewNormalizer returns a Unicode normalizer for one of NFC, NFD, NFKC or
// NFKD (case-insensitive). An empty name returns nil, meaning identities are
// used verbatim.
func NewNormalizer(name string) (Normalizer, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "NFC":
		return unicodeForm{norm.NFC}, nil
	case "NFD":
		return unicodeForm{norm.NFD}, nil
	case "NFKC":
		return unicodeForm{norm.NFKC}, nil
	case "NFKD":
		return unicodeForm{norm.NFKD}, nil
	default:
		return nil, fmt.Errorf("unknown normalization form %q", name)
	}
}
