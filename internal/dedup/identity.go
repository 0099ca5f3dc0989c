// Package dedup derives code identities and decides whether a code has
// already been captured.
package dedup

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// Kind tells how an identity was derived.
type Kind int

const (
	// KindContent identities are the decoded payload and persist across sessions.
	KindContent Kind = iota
	// KindPosition identities are bounding-box fingerprints, valid within one session.
	KindPosition
)

func (k Kind) String() string {
	if k == KindPosition {
		return "position"
	}
	return "content"
}

// Identity is the stable key of a detected code.
type Identity struct {
	Key  string
	Kind Kind
}

// Persistent reports whether the identity may be recorded in a persistent index.
func (id Identity) Persistent() bool { return id.Kind == KindContent }

func (id Identity) String() string { return id.Key }

// Resolve returns the content identity for decoded non-blank text, otherwise
// the position identity "minX_minY_maxX_maxY" of box. norm may be nil.
func Resolve(text string, decoded bool, box utils.Box, norm Normalizer) Identity {
	if decoded {
		if t := strings.TrimSpace(text); t != "" {
			if norm != nil {
				t = norm.Normalize(t)
			}
			return Identity{Key: t, Kind: KindContent}
		}
	}
	return Identity{Key: PositionKey(box), Kind: KindPosition}
}

// PositionKey formats the bounding-box fingerprint of a code.
func PositionKey(b utils.Box) string {
	return fmt.Sprintf("%d_%d_%d_%d", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
