package portfolio

import (
	"math"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

// ExpiringWindowDays is the horizon of the dashboard expiry list.
const ExpiringWindowDays = 30

// DaysUntilExpiry returns the number of days from now until expiry,
// rounded up. It is negative once the contract expired. ok is false when
// the contract has no expiry date.
func DaysUntilExpiry(expiry domain.Date, now time.Time) (days int, ok bool) {
	if expiry.IsZero() {
		return 0, false
	}
	diff := expiry.Sub(now)
	return int(math.Ceil(diff.Hours() / 24)), true
}
