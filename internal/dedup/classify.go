package dedup

import (
	"fmt"
	"strings"
)

// Decision is the classification of one identity.
type Decision int

const (
	New Decision = iota
	Duplicate
)

func (d Decision) String() string {
	if d == Duplicate {
		return "DUPLICATE"
	}
	return "NEW"
}

// Reasons attached to duplicate verdicts.
const (
	ReasonSession = "seen earlier in this session"
	ReasonIndex   = "already present in output location"
)

// Lookup is a read-only identity set.
type Lookup interface {
	Contains(key string) bool
}

// Verdict is the result of Classify. Reason is empty for New.
type Verdict struct {
	Decision Decision
	Reason   string
}

// IsNew reports whether the identity has not been captured yet.
func (v Verdict) IsNew() bool { return v.Decision == New }

// Classify checks id against the session set first, then the persistent
// index. Either set may be nil. Inserting a new identity is left to the
// caller.
func Classify(id Identity, session, index Lookup) Verdict {
	if session != nil && session.Contains(id.Key) {
		return Verdict{Decision: Duplicate, Reason: ReasonSession}
	}
	if index != nil && index.Contains(id.Key) {
		return Verdict{Decision: Duplicate, Reason: ReasonIndex}
	}
	return Verdict{Decision: New}
}

// MarshalText renders the decision as NEW or DUPLICATE.
func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText parses NEW or DUPLICATE, ignoring case.
func (d *Decision) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "NEW":
		*d = New
	case "DUPLICATE":
		*d = Duplicate
	default:
		return fmt.Errorf("unknown decision %q", b)
	}
	return nil
}
