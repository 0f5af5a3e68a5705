package handlers

import (
	"strconv"
	"time"
)

// FormatUptime renders a duration in the largest unit that keeps the value
// readable: seconds until a minute, minutes until an hour, hours after that.
// Non-integer values keep their fraction ("1.5 minutes").
func FormatUptime(d time.Duration) string {
	value := d.Seconds()
	unit := "second"
	if value > 60 {
		value /= 60
		unit = "minute"
	}
	if value > 60 {
		value /= 60
		unit = "hour"
	}
	if value != 1 {
		unit += "s"
	}
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + unit
}
