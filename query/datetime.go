package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
)

// Normalized forms pad partial values to full precision so that they compare
// as strings: lower bounds and stored values pad with the earliest instant,
// upper bounds with the latest.
const (
	dateLower     = "00000101"
	dateUpper     = "99991231"
	timeLower     = "000000.000000"
	timeUpper     = "235959.999999"
	dateTimeLower = dateLower + timeLower
	dateTimeUpper = dateUpper + timeUpper
	dtLayout      = "20060102150405.000000"
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}(\d{2}(\d{2})?)?$`)
	timeRe     = regexp.MustCompile(`^\d{2}(\d{2}(\d{2}(\.\d{1,6})?)?)?$`)
	dateTimeRe = regexp.MustCompile(`^(\d{4}(?:\d{2}(?:\d{2}(?:\d{2}(?:\d{2}(?:\d{2}(?:\.\d{1,6})?)?)?)?)?)?)([+-]\d{4})?$`)
	offsetRe   = regexp.MustCompile(`^[+-]\d{4}$`)
)

// Normalize returns the comparable form of a stored DA, TM or DT value. Other
// VRs are returned unchanged.
func Normalize(vr, value string) string {
	switch vr {
	case dicom.VR_DA:
		return pad(cleanDate(value), dateLower)
	case dicom.VR_TM:
		return pad(cleanTime(value), timeLower)
	case dicom.VR_DT:
		v, _ := splitOffset(value)
		return pad(v, dateTimeLower)
	}
	return value
}

func cleanDate(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ".", "")
}

func cleanTime(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", "")
}

// pad completes s from template; values longer than the template are cut.
func pad(s, template string) string {
	if len(s) >= len(template) {
		return s[:len(template)]
	}
	return s + template[len(s):]
}

// ceil completes s to the latest instant it denotes, respecting month length.
func ceil(s, template string) string {
	if len(s) == 6 && strings.HasPrefix(template, dateUpper) {
		if t, err := time.Parse("200601", s); err == nil {
			return pad(t.AddDate(0, 1, -1).Format("20060102"), template)
		}
	}
	return pad(s, template)
}

func splitOffset(dt string) (string, string) {
	m := dateTimeRe.FindStringSubmatch(strings.TrimSpace(dt))
	if m == nil {
		return strings.TrimSpace(dt), ""
	}
	return m[1], m[2]
}

// bounds is a parsed date/time matching value. Empty bounds are open.
type bounds struct {
	lower, upper string
	// offsets declared by DT bounds, "" when absent
	lowerOffset, upperOffset string
}

func (b bounds) universal() bool {
	return b.lower == "" && b.upper == ""
}

// parseRange parses a single value or an "A-B", "-B" or "A-" range of the
// given VR into normalized bounds.
func parseRange(vr, value string) (bounds, error) {
	value = strings.TrimSpace(value)
	if vr == dicom.VR_DT {
		return parseDateTimeRange(value)
	}
	valid, lower, upper := dateRe, dateLower, dateUpper
	clean := cleanDate
	if vr == dicom.VR_TM {
		valid, lower, upper = timeRe, timeLower, timeUpper
		clean = cleanTime
	}

	lo, hi, isRange := strings.Cut(value, "-")
	if !isRange {
		hi = lo
	}
	lo, hi = clean(lo), clean(hi)
	var b bounds
	if lo != "" {
		if !valid.MatchString(lo) {
			return b, fmt.Errorf("%w: %q", errors.ErrInvalidRange, value)
		}
		b.lower = pad(lo, lower)
	}
	if hi != "" {
		if !valid.MatchString(hi) {
			return b, fmt.Errorf("%w: %q", errors.ErrInvalidRange, value)
		}
		b.upper = ceil(hi, upper)
	}
	if b.lower != "" && b.upper != "" && b.lower > b.upper {
		return b, fmt.Errorf("%w: %q has lower bound after upper bound", errors.ErrInvalidRange, value)
	}
	return b, nil
}

// parseDateTimeRange splits a DT range at the '-' that leaves two valid
// values, since a '-' may also introduce a UTC offset.
func parseDateTimeRange(value string) (bounds, error) {
	if m := dateTimeRe.FindStringSubmatch(value); m != nil {
		return bounds{
			lower:       pad(m[1], dateTimeLower),
			upper:       ceil(m[1], dateTimeUpper),
			lowerOffset: m[2],
			upperOffset: m[2],
		}, nil
	}
	for i := 0; i < len(value); i++ {
		if value[i] != '-' {
			continue
		}
		lo, hi := value[:i], value[i+1:]
		lm := dateTimeRe.FindStringSubmatch(lo)
		hm := dateTimeRe.FindStringSubmatch(hi)
		if (lo != "" && lm == nil) || (hi != "" && hm == nil) {
			continue
		}
		var b bounds
		if lm != nil {
			b.lower, b.lowerOffset = pad(lm[1], dateTimeLower), lm[2]
		}
		if hm != nil {
			b.upper, b.upperOffset = ceil(hm[1], dateTimeUpper), hm[2]
		}
		return b, nil
	}
	return bounds{}, fmt.Errorf("%w: %q", errors.ErrInvalidRange, value)
}

// combineBounds merges date and time bounds into date time bounds.
func combineBounds(date, tm bounds) bounds {
	var b bounds
	if date.lower != "" {
		t := tm.lower
		if t == "" {
			t = timeLower
		}
		b.lower = date.lower + t
	}
	if date.upper != "" {
		t := tm.upper
		if t == "" {
			t = timeUpper
		}
		b.upper = date.upper + t
	}
	return b
}

// parseOffset parses a "+HHMM" or "-HHMM" UTC offset.
func parseOffset(s string) (time.Duration, error) {
	if !offsetRe.MatchString(s) {
		return 0, fmt.Errorf("%w: timezone offset %q", errors.ErrInvalidValue, s)
	}
	hours, _ := strconv.Atoi(s[1:3])
	minutes, _ := strconv.Atoi(s[3:5])
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if s[0] == '-' {
		d = -d
	}
	return d, nil
}

// shift moves a normalized date time value from the from offset to the to
// offset. Values outside the calendar are returned unchanged.
func shift(dt string, from, to time.Duration) string {
	if dt == "" || from == to {
		return dt
	}
	t, err := time.Parse(dtLayout, dt)
	if err != nil {
		return dt
	}
	return t.Add(to - from).Format(dtLayout)
}
