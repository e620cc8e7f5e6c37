package models

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// NewOrderNumber returns a short human-quotable order number, e.g. ORD-8F3A21C4.
func NewOrderNumber() string {
	u := uuid.New()
	return fmt.Sprintf("ORD-%s", strings.ToUpper(u.String()[:8]))
}
