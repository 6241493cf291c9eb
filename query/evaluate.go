package query

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/dicomarc/dicom"
)

// Evaluate applies plan to records held in memory: it keeps the matching
// records, sorts them by the plan's order and returns the window selected by
// offset and limit. Records without an order keep their input order.
func Evaluate(plan *Plan, records []*Record) []*dicom.Dataset {
	var matched []*dicom.Dataset
	for _, r := range records {
		if plan.Predicate.Match(r) {
			matched = append(matched, r.Attrs)
		}
	}
	if len(plan.OrderBy) > 0 {
		slices.SortStableFunc(matched, func(a, b *dicom.Dataset) int {
			return compareRecords(plan.OrderBy, a, b)
		})
	}
	if plan.Offset > 0 {
		if plan.Offset >= len(matched) {
			return nil
		}
		matched = matched[plan.Offset:]
	}
	if plan.Limit > 0 && plan.Limit < len(matched) {
		matched = matched[:plan.Limit]
	}
	return matched
}

// CountMatches returns the number of records matching plan.
func CountMatches(plan *Plan, records []*Record) int64 {
	var n int64
	for _, r := range records {
		if plan.Predicate.Match(r) {
			n++
		}
	}
	return n
}

func compareRecords(orders []Order, a, b *dicom.Dataset) int {
	for _, o := range orders {
		c := compareValues(dicom.VROf(o.Tag), a.GetString(o.Tag), b.GetString(o.Tag))
		if o.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// IsNumericVR reports whether values of vr order, and are indexed, as
// integers.
func IsNumericVR(vr string) bool {
	switch vr {
	case dicom.VR_IS, dicom.VR_US, dicom.VR_SS, dicom.VR_UL, dicom.VR_SL, dicom.VR_UV, dicom.VR_SV:
		return true
	}
	return false
}

// compareValues orders values of vr the way the database backends order
// their index: missing values first, integers of numeric VRs numerically
// and ahead of values that do not parse, everything else as strings.
func compareValues(vr, a, b string) int {
	if a == "" || b == "" {
		return cmp.Compare(a, b)
	}
	if IsNumericVR(vr) {
		x, xerr := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		y, yerr := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
		switch {
		case xerr == nil && yerr == nil:
			return cmp.Compare(x, y)
		case xerr == nil:
			return -1
		case yerr == nil:
			return 1
		}
	}
	return cmp.Compare(a, b)
}
