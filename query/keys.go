package query

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Reserved request parameters
const (
	ParamFuzzyMatching      = "fuzzymatching"
	ParamDateTimeMatching   = "datetimematching"
	ParamTimezoneAdjustment = "timezoneadjustment"
	ParamOffset             = "offset"
	ParamLimit              = "limit"
	ParamIncludeField       = "includefield"
	ParamOrderBy            = "orderby"
)

var reservedParams = []string{
	ParamFuzzyMatching,
	ParamDateTimeMatching,
	ParamTimezoneAdjustment,
	ParamOffset,
	ParamLimit,
	ParamIncludeField,
	ParamOrderBy,
}

const includeAll = "all"

// Request is a search as received from a transport.
type Request struct {
	// AETitle names the application entity the search is addressed to.
	AETitle string
	Level   types.QueryLevel
	// Relational requests matching keys of any level in one query.
	Relational bool
	// StudyInstanceUID and SeriesInstanceUID fix the ancestors of the
	// searched entities, as embedded in a request path.
	StudyInstanceUID  string
	SeriesInstanceUID string
	Params            url.Values

	AccessControlIDs      []string
	IncludeMergedPatients bool
}

// Order is one sort key of a query.
type Order struct {
	Tag        dicom.Tag
	Descending bool
}

func (o Order) String() string {
	if o.Descending {
		return "-" + dicom.KeywordOf(o.Tag)
	}
	return dicom.KeywordOf(o.Tag)
}

// Keys is a parsed search request.
type Keys struct {
	// Dataset holds the matching keys and the return keys, the latter
	// without value.
	Dataset    *dicom.Dataset
	IncludeAll bool
	OrderBy    []Order
	Options    types.QueryOptions
	Offset     int
	Limit      int
}

// RequestedOptions returns the query options a request asks for.
func RequestedOptions(req *Request) (types.QueryOptions, error) {
	var opts types.QueryOptions
	if req.Relational {
		opts = opts.With(types.QueryOptionRelational)
	}
	flags := []struct {
		param string
		opt   types.QueryOption
	}{
		{ParamFuzzyMatching, types.QueryOptionFuzzy},
		{ParamDateTimeMatching, types.QueryOptionDateTime},
		{ParamTimezoneAdjustment, types.QueryOptionTimezone},
	}
	for _, f := range flags {
		set, err := boolParam(req.Params, f.param)
		if err != nil {
			return 0, err
		}
		if set {
			opts = opts.With(f.opt)
		}
	}
	return opts, nil
}

// ParseKeys turns the parameters of req into query keys. Parsing is all or
// nothing: on error no keys are returned and the error is a
// *errors.ValidationError naming the offending parameter.
func ParseKeys(req *Request) (*Keys, error) {
	opts, err := RequestedOptions(req)
	if err != nil {
		return nil, err
	}
	keys := &Keys{Dataset: dicom.NewDataset(), Options: opts}

	if keys.Offset, err = intParam(req.Params, ParamOffset); err != nil {
		return nil, err
	}
	if keys.Limit, err = intParam(req.Params, ParamLimit); err != nil {
		return nil, err
	}
	if err := keys.parseIncludeFields(req.Params[ParamIncludeField]); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Params))
	for name := range req.Params {
		if !slices.Contains(reservedParams, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if err := keys.setAttribute(name, req.Params[name]); err != nil {
			return nil, err
		}
	}

	if err := keys.parseOrderBy(req.Level, req.Params[ParamOrderBy]); err != nil {
		return nil, err
	}

	if req.StudyInstanceUID != "" {
		if err := keys.Dataset.SetStrings(dicom.StudyInstanceUID, req.StudyInstanceUID); err != nil {
			return nil, errors.NewValidationError("StudyInstanceUID="+req.StudyInstanceUID, err)
		}
	}
	if req.SeriesInstanceUID != "" {
		if err := keys.Dataset.SetStrings(dicom.SeriesInstanceUID, req.SeriesInstanceUID); err != nil {
			return nil, errors.NewValidationError("SeriesInstanceUID="+req.SeriesInstanceUID, err)
		}
	}
	return keys, nil
}

func (k *Keys) parseIncludeFields(values []string) error {
	for _, field := range splitList(values) {
		if field == includeAll {
			k.IncludeAll = true
			continue
		}
		if level, ok := fieldGroups[strings.ToLower(field)]; ok {
			for _, tag := range levelRules[level].attributes {
				if k.Dataset.Contains(tag) {
					continue
				}
				if err := k.Dataset.SetNull(tag); err != nil {
					return errors.NewValidationError(ParamIncludeField+"="+field, err)
				}
			}
			continue
		}
		path, err := dicom.ParseTagPath(field)
		if err != nil {
			return errors.NewValidationError(ParamIncludeField+"="+field, err)
		}
		item, err := k.Dataset.NestedItem(path.Parents())
		if err != nil {
			return errors.NewValidationError(ParamIncludeField+"="+field, err)
		}
		if !item.Contains(path.Last()) {
			if err := item.SetNull(path.Last()); err != nil {
				return errors.NewValidationError(ParamIncludeField+"="+field, err)
			}
		}
	}
	return nil
}

func (k *Keys) setAttribute(name string, values []string) error {
	param := name
	if len(values) > 0 {
		param = name + "=" + values[0]
	}
	path, err := dicom.ParseTagPath(name)
	if err != nil {
		return errors.NewValidationError(param, err)
	}
	item, err := k.Dataset.NestedItem(path.Parents())
	if err != nil {
		return errors.NewValidationError(param, err)
	}
	tag := path.Last()
	if dicom.VROf(tag) == dicom.VR_UI {
		values = splitList(values)
	}
	values = slices.DeleteFunc(slices.Clone(values), func(v string) bool { return v == "" })
	if len(values) == 0 {
		if dicom.VROf(tag) == dicom.VR_SQ {
			_, err = item.Item(tag)
		} else {
			err = item.SetNull(tag)
		}
	} else {
		err = item.SetStrings(tag, values...)
	}
	if err != nil {
		return errors.NewValidationError(param, err)
	}
	return nil
}

func (k *Keys) parseOrderBy(level types.QueryLevel, values []string) error {
	for _, field := range splitList(values) {
		order := Order{}
		name := field
		if strings.HasPrefix(name, "-") {
			order.Descending = true
			name = name[1:]
		}
		path, err := dicom.ParseTagPath(name)
		if err != nil {
			return errors.NewValidationError(ParamOrderBy+"="+field, err)
		}
		if len(path) != 1 || !isOrderable(level, path.Last()) {
			return errors.NewValidationError(ParamOrderBy+"="+field,
				fmt.Errorf("%w at %s level", errors.ErrNotOrderable, level))
		}
		order.Tag = path.Last()
		k.OrderBy = append(k.OrderBy, order)
	}
	return nil
}

// splitList flattens comma separated parameter values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func boolParam(params url.Values, name string) (bool, error) {
	s := params.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.NewValidationError(name+"="+s, err)
	}
	return b, nil
}

func intParam(params url.Values, name string) (int, error) {
	s := params.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewValidationError(name+"="+s, err)
	}
	return n, nil
}
