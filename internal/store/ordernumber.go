package store

import (
	"encoding/base32"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "ORD-"

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateOrderNumber returns a time-seeded token with random entropy, e.g. ORD-S44WE8-7QX4ZD.
// It is not guaranteed unique; the orders_order_number_key constraint is the arbiter.
func GenerateOrderNumber() string {
	return orderNumberAt(time.Now(), uuid.New())
}

func orderNumberAt(now time.Time, entropy uuid.UUID) string {
	stamp := strings.ToUpper(strconv.FormatInt(now.Unix(), 36))
	random := orderNumberEncoding.EncodeToString(entropy[:])[:6]
	return orderNumberPrefix + stamp + "-" + random
}
