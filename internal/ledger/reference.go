package ledger

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/util/luna"
)

const (
	referencePrefix = "ORDER-"
	suffixDigits    = 9
)

var suffixLimit = big.NewInt(1_000_000_000)

// NewReference returns ORDER-<unix millis>-<9 random digits><check digit>.
// The check digit covers the millis and the random digits so that typos are
// rejected before any storage lookup.
func NewReference(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, suffixLimit)
	if err != nil {
		return "", err
	}
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	suffix := leftPad(n.String(), suffixDigits)
	check := luna.CheckDigit(millis + suffix)
	return referencePrefix + millis + "-" + suffix + string(check), nil
}

// ValidReference reports whether ref has the shape produced by NewReference.
func ValidReference(ref string) bool {
	rest, ok := strings.CutPrefix(ref, referencePrefix)
	if !ok {
		return false
	}
	millis, suffix, ok := strings.Cut(rest, "-")
	if !ok || millis == "" || len(suffix) != suffixDigits+1 {
		return false
	}
	return luna.Validate(millis + suffix)
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
