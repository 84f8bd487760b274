package aggregation

import (
	"time"

	"github.com/smmtools/vk-insight-bot/internal/models"
)

// Quick range shortcuts accepted alongside explicit bounds.
const (
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// ResolveWindow builds the effective date window for a request. A quick
// range derives both bounds from the current time and overrides any
// explicitly supplied ones.
func ResolveWindow(req models.MetricsRequest, now time.Time) models.DateWindow {
	w := models.DateWindow{From: req.DateFrom, To: req.DateTo}

	nowTS := now.Unix()
	switch req.QuickRange {
	case RangeWeek:
		w = models.DateWindow{From: nowTS - 7*24*3600, To: nowTS}
	case RangeMonth:
		w = models.DateWindow{From: nowTS - 30*24*3600, To: nowTS}
	case RangeYear:
		w = models.DateWindow{From: nowTS - 365*24*3600, To: nowTS}
	}
	return w
}
