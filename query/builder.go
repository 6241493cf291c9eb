package query

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// QueryParam is the matching policy of one search.
type QueryParam struct {
	Options types.QueryOptions
	// Fuzzy encodes person names when Options include FUZZY.
	Fuzzy fuzzy.Encoder
	// PersonNameCaseInsensitive compares PN values ignoring case.
	PersonNameCaseInsensitive bool
	// MatchUnknown also matches records where a matched attribute is empty.
	MatchUnknown          bool
	IncludeMergedPatients bool
	AccessControlIDs      []string
	// TimezoneOffset is the caller's UTC offset, ArchiveTimezoneOffset the
	// archive's; both "+HHMM" form. Used when Options include TIMEZONE.
	TimezoneOffset        string
	ArchiveTimezoneOffset string
}

// Plan is a built query: the predicate scoped to one level together with
// the ordering and window applied on execution.
type Plan struct {
	Level      types.QueryLevel
	Relational bool
	Predicate  And
	OrderBy    []Order
	Offset     int
	Limit      int

	optionalKeyNotSupported bool
}

// OptionalKeyNotSupported reports whether a key carried a value for an
// attribute the query could not match.
func (p *Plan) OptionalKeyNotSupported() bool {
	return p.optionalKeyNotSupported
}

// Build compiles keys into a plan for level. pids restrict the search to the
// resolved identities of one patient. Every error is a
// *errors.ValidationError.
func Build(level types.QueryLevel, pids []types.IDWithIssuer, keys *dicom.Dataset, param *QueryParam) (*Plan, error) {
	if level.Rank() < 0 {
		return nil, errors.NewValidationError("level="+string(level), fmt.Errorf("unknown query level %q", level))
	}
	if param == nil {
		param = &QueryParam{}
	}
	b := &builder{
		level:   level,
		param:   param,
		levels:  matchedLevels(level, param.Options.Has(types.QueryOptionRelational)),
		handled: make(map[dicom.Tag]bool),
	}
	if err := b.timezones(keys); err != nil {
		return nil, err
	}

	for _, tag := range ancestorKeys(level) {
		if values := keys.GetStrings(tag); len(values) > 0 && values[0] != "" {
			lvl, _ := AttributeLevel(tag)
			b.add(&Equal{Field: Field{Level: lvl, Tag: tag}, Values: values})
		}
		b.handled[tag] = true
	}

	if len(pids) > 0 {
		b.add(&Identity{IDs: slices.Clone(pids)})
		b.handled[dicom.PatientID] = true
		b.handled[dicom.IssuerOfPatientID] = true
	}
	if !param.IncludeMergedPatients {
		b.add(NotMerged{})
	}
	if len(param.AccessControlIDs) > 0 && level != types.QueryLevelPatient {
		b.add(&AccessControl{IDs: slices.Clone(param.AccessControlIDs)})
	}

	if param.Options.Has(types.QueryOptionDateTime) {
		if err := b.combinedDateTimes(keys); err != nil {
			return nil, err
		}
	}

	for _, tag := range keys.Tags() {
		if b.handled[tag] {
			continue
		}
		e := keys.Elements[tag]
		if e.IsEmpty() || slices.Contains(technicalAttributes, tag) {
			continue
		}
		lvl, ok := AttributeLevel(tag)
		if !ok || !slices.Contains(b.levels, lvl) || isReturnOnly(tag) {
			b.plan.optionalKeyNotSupported = true
			continue
		}
		pred, err := b.attribute(Field{Level: lvl, Tag: tag}, e)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			continue
		}
		if param.MatchUnknown && tag != UniqueKey(lvl) {
			pred = Or{pred, &Empty{Field: Field{Level: lvl, Tag: tag}}}
		}
		b.add(pred)
	}

	b.plan.Level = level
	b.plan.Relational = param.Options.Has(types.QueryOptionRelational)
	return &b.plan, nil
}

type builder struct {
	level   types.QueryLevel
	param   *QueryParam
	levels  []types.QueryLevel
	handled map[dicom.Tag]bool
	plan    Plan

	// set when date time bounds shift between caller and archive offsets
	shiftFrom, shiftTo time.Duration
	shifting           bool
}

func (b *builder) add(p Predicate) {
	b.plan.Predicate = append(b.plan.Predicate, p)
}

func (b *builder) timezones(keys *dicom.Dataset) error {
	if !b.param.Options.Has(types.QueryOptionTimezone) {
		return nil
	}
	caller := b.param.TimezoneOffset
	if caller == "" {
		caller = keys.GetString(dicom.TimezoneOffsetFromUTC)
	}
	if caller == "" || b.param.ArchiveTimezoneOffset == "" {
		return nil
	}
	from, err := parseOffset(caller)
	if err != nil {
		return errors.NewValidationError("TimezoneOffsetFromUTC="+caller, err)
	}
	to, err := parseOffset(b.param.ArchiveTimezoneOffset)
	if err != nil {
		return errors.NewValidationError("TimezoneOffsetFromUTC="+b.param.ArchiveTimezoneOffset, err)
	}
	b.shiftFrom, b.shiftTo, b.shifting = from, to, true
	return nil
}

// shiftBounds moves date time bounds into the archive's offset. Bounds that
// declare their own offset shift from it instead of the caller's.
func (b *builder) shiftBounds(bd bounds) bounds {
	if !b.shifting {
		return bd
	}
	shiftOne := func(v, declared string) string {
		from := b.shiftFrom
		if declared != "" {
			if d, err := parseOffset(declared); err == nil {
				from = d
			}
		}
		return shift(v, from, b.shiftTo)
	}
	bd.lower = shiftOne(bd.lower, bd.lowerOffset)
	bd.upper = shiftOne(bd.upper, bd.upperOffset)
	return bd
}

func (b *builder) combinedDateTimes(keys *dicom.Dataset) error {
	for _, pair := range dateTimePairs {
		dateTag, timeTag := pair.Date, pair.Time
		dateValues, timeValues := keys.GetStrings(dateTag), keys.GetStrings(timeTag)
		if len(dateValues) == 0 || dateValues[0] == "" || len(timeValues) == 0 || timeValues[0] == "" {
			continue
		}
		lvl, _ := AttributeLevel(dateTag)
		if !slices.Contains(b.levels, lvl) {
			continue
		}
		date, err := parseRange(dicom.VR_DA, dateValues[0])
		if err != nil {
			return errors.NewValidationError(dicom.KeywordOf(dateTag)+"="+dateValues[0], err)
		}
		tm, err := parseRange(dicom.VR_TM, timeValues[0])
		if err != nil {
			return errors.NewValidationError(dicom.KeywordOf(timeTag)+"="+timeValues[0], err)
		}
		b.handled[dateTag] = true
		b.handled[timeTag] = true
		if date.universal() {
			continue
		}
		combined := b.shiftBounds(combineBounds(date, tm))
		b.add(&DateTimeRange{
			Date:  Field{Level: lvl, Tag: dateTag},
			Time:  Field{Level: lvl, Tag: timeTag},
			Lower: combined.lower,
			Upper: combined.upper,
		})
	}
	return nil
}

// attribute builds the predicate for one key element, or nil when the key
// matches every record.
func (b *builder) attribute(f Field, e *dicom.Element) (Predicate, error) {
	if e.VR == dicom.VR_SQ {
		return b.sequence(f, e)
	}
	values := e.Strings()
	if len(values) == 0 {
		return nil, nil
	}
	param := dicom.KeywordOf(f.Tag) + "=" + values[0]
	if e.VR == dicom.VR_UI {
		uids := slices.DeleteFunc(slices.Clone(values), func(v string) bool { return strings.TrimSpace(v) == "" })
		if len(uids) == 0 {
			return nil, nil
		}
		return &Equal{Field: f, Values: uids}, nil
	}
	var or Or
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p, err := b.value(f, e.VR, v)
		if err != nil {
			return nil, errors.NewValidationError(param, err)
		}
		if p == nil {
			// one universal value makes the whole list universal
			return nil, nil
		}
		or = append(or, p)
	}
	switch len(or) {
	case 0:
		return nil, nil
	case 1:
		return or[0], nil
	}
	return or, nil
}

func (b *builder) value(f Field, vr, v string) (Predicate, error) {
	switch vr {
	case dicom.VR_DA, dicom.VR_TM, dicom.VR_DT:
		bd, err := parseRange(vr, v)
		if err != nil {
			return nil, err
		}
		if bd.universal() {
			return nil, nil
		}
		if vr == dicom.VR_DT {
			bd = b.shiftBounds(bd)
		}
		return &Range{Field: f, VR: vr, Lower: bd.lower, Upper: bd.upper}, nil
	}

	if v == "*" {
		return nil, nil
	}
	fold := false
	if vr == dicom.VR_PN {
		if b.param.Options.Has(types.QueryOptionFuzzy) && b.param.Fuzzy != nil {
			return newFuzzy(f, v, b.param.Fuzzy), nil
		}
		fold = b.param.PersonNameCaseInsensitive
	}
	if wildcard.Has(v) {
		return newWildcard(f, v, fold)
	}
	return &Equal{Field: f, Values: []string{v}, Fold: fold}, nil
}

func (b *builder) sequence(f Field, e *dicom.Element) (Predicate, error) {
	items := e.Items()
	if len(items) == 0 {
		return nil, nil
	}
	var and And
	for _, tag := range items[0].Tags() {
		sub := items[0].Elements[tag]
		if sub.IsEmpty() {
			continue
		}
		p, err := b.attribute(Field{Level: f.Level, Tag: tag}, sub)
		if err != nil {
			return nil, err
		}
		if p != nil {
			and = append(and, p)
		}
	}
	if len(and) == 0 {
		return nil, nil
	}
	return &Item{Field: f, Pred: and}, nil
}
