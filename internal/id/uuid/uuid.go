// Package uuid provides progress session token generation.
package uuid

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionTokenPrefix starts every progress session token.
const SessionTokenPrefix = "client_"

const tokenSuffixLen = 12

// Generator creates progress session tokens.
type Generator struct {
	now func() time.Time
}

// New creates a Generator using the wall clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewSessionToken returns client_<unix millis>_<random suffix>. The suffix is
// taken from a UUIDv4 so concurrent sessions never collide in practice.
func (g *Generator) NewSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	now := time.Now
	if g != nil && g.now != nil {
		now = g.now
	}
	suffix := strings.ReplaceAll(id.String(), "-", "")[:tokenSuffixLen]
	return SessionTokenPrefix + strconv.FormatInt(now().UnixMilli(), 10) + "_" + suffix, nil
}
