// Package timeutil parses timeframe strings and aligns timestamps to their
// boundaries. Every function here is pure: same inputs, same outputs, no
// clock reads beyond what's passed in.
package timeutil

import (
	"fmt"
	"time"
)

// Direction controls which way AlignToTimeframe rounds.
type Direction int

const (
	Floor Direction = iota
	Ceil
	Round
)

// Shanghai is the fixed zone timestamps are reconstructed in, matching the
// source system's single-timezone deployment.
var Shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 8*3600)
	}
	return loc
}

// ParseTimeframe maps a timeframe string like "15m", "4h", "1d", "1w", "1M"
// to its duration in seconds.
func ParseTimeframe(s string) (int64, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("timeutil: invalid timeframe %q", s)
	}
	unit := s[len(s)-1]
	var mult int64
	switch unit {
	case 'm':
		mult = 60
	case 'h':
		mult = 3600
	case 'd':
		mult = 86400
	case 'w':
		mult = 604800
	case 'M':
		mult = 2592000
	default:
		return 0, fmt.Errorf("timeutil: unknown timeframe unit in %q", s)
	}

	var n int64
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("timeutil: invalid timeframe magnitude in %q", s)
	}
	return n * mult, nil
}

// AlignToTimeframe divides t's unix-seconds by the timeframe period and
// floors/ceils/rounds to the nearest boundary, reconstructing the result in
// the fixed Shanghai zone.
func AlignToTimeframe(t time.Time, tf string, dir Direction) (time.Time, error) {
	period, err := ParseTimeframe(tf)
	if err != nil {
		return time.Time{}, err
	}
	sec := t.Unix()
	var boundary int64
	switch dir {
	case Floor:
		boundary = (sec / period) * period
	case Ceil:
		if sec%period == 0 {
			boundary = sec
		} else {
			boundary = (sec/period + 1) * period
		}
	case Round:
		rem := sec % period
		if rem*2 >= period {
			boundary = (sec/period + 1) * period
		} else {
			boundary = (sec / period) * period
		}
	default:
		return time.Time{}, fmt.Errorf("timeutil: unknown direction %d", dir)
	}
	return time.Unix(boundary, 0).In(Shanghai), nil
}

// TimeUntilNextKline returns ceil(now, tf) - now.
func TimeUntilNextKline(tf string, now time.Time) (time.Duration, error) {
	next, err := AlignToTimeframe(now, tf, Ceil)
	if err != nil {
		return 0, err
	}
	d := next.Sub(now.In(Shanghai))
	if d < 0 {
		d = 0
	}
	return d, nil
}

// IsKlineClosed reports whether the candle opened at openTime has fully
// closed as of now: now >= openTime + period.
func IsKlineClosed(openTime time.Time, tf string, now time.Time) (bool, error) {
	period, err := ParseTimeframe(tf)
	if err != nil {
		return false, err
	}
	closeTime := openTime.Add(time.Duration(period) * time.Second)
	return !now.Before(closeTime), nil
}
