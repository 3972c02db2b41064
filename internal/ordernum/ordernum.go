// Package ordernum produces the human-readable order numbers printed on
// receipts and quoted by customer support.
package ordernum

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxAttempts bounds regeneration when the backend reports the generated
// number as already taken.
const MaxAttempts = 5

// alphabet for the random suffix, with look-alike characters removed.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const suffixLen = 4

type Generator struct {
	prefix string
	now    func() time.Time
}

func New(prefix string) *Generator {
	return &Generator{prefix: prefix, now: time.Now}
}

// Relational builds PREFIX-YEAR-TOKEN where TOKEN mixes a microsecond
// timestamp with a short random suffix. Uniqueness is still enforced by the
// orders table constraint; callers regenerate on a unique violation, bounded
// by MaxAttempts.
func (g *Generator) Relational() (string, error) {
	now := g.now().UTC()
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMicro(), 36))

	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}

	return fmt.Sprintf("%s-%d-%s-%s", g.prefix, now.Year(), stamp, buf), nil
}

// Sequential builds PREFIX-YEAR-NNNNNN from the current order count. The
// document store has no safe global counter, so the next sequence value is
// derived from how many orders already exist. Only safe under the store's
// single-writer lock.
func (g *Generator) Sequential(existing int) string {
	now := g.now().UTC()
	return fmt.Sprintf("%s-%d-%06d", g.prefix, now.Year(), existing+1)
}
