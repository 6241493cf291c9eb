package types

import (
	"fmt"
	"strings"
)

// QueryLevel represents a level of the Patient/Study/Series/Instance hierarchy
type QueryLevel string

const (
	QueryLevelPatient  QueryLevel = "PATIENT"
	QueryLevelStudy    QueryLevel = "STUDY"
	QueryLevelSeries   QueryLevel = "SERIES"
	QueryLevelInstance QueryLevel = "INSTANCE"
)

// QueryLevelImage is the C-FIND wire name of the instance level.
const QueryLevelImage QueryLevel = "IMAGE"

var levelRank = map[QueryLevel]int{
	QueryLevelPatient:  0,
	QueryLevelStudy:    1,
	QueryLevelSeries:   2,
	QueryLevelInstance: 3,
}

// ParseQueryLevel parses a level name, accepting IMAGE as an alias of INSTANCE.
func ParseQueryLevel(s string) (QueryLevel, error) {
	l := QueryLevel(strings.ToUpper(strings.TrimSpace(s)))
	if l == QueryLevelImage {
		return QueryLevelInstance, nil
	}
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("unknown query level %q", s)
	}
	return l, nil
}

// Rank returns the depth of the level in the hierarchy (PATIENT = 0).
func (l QueryLevel) Rank() int {
	if l == QueryLevelImage {
		return levelRank[QueryLevelInstance]
	}
	r, ok := levelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Compare orders levels from PATIENT to INSTANCE.
func (l QueryLevel) Compare(o QueryLevel) int {
	return l.Rank() - o.Rank()
}

// Ancestors returns the levels above l, root first.
func (l QueryLevel) Ancestors() []QueryLevel {
	var out []QueryLevel
	for _, a := range QueryLevels() {
		if a.Compare(l) < 0 {
			out = append(out, a)
		}
	}
	return out
}

// QueryLevels returns all levels in hierarchy order.
func QueryLevels() []QueryLevel {
	return []QueryLevel{QueryLevelPatient, QueryLevelStudy, QueryLevelSeries, QueryLevelInstance}
}

// QueryOption is an extended negotiation flag agreed between caller and archive
type QueryOption uint8

const (
	QueryOptionRelational QueryOption = 1 << iota
	QueryOptionDateTime
	QueryOptionFuzzy
	QueryOptionTimezone
)

var queryOptionNames = []struct {
	opt  QueryOption
	name string
}{
	{QueryOptionRelational, "RELATIONAL"},
	{QueryOptionDateTime, "DATETIME"},
	{QueryOptionFuzzy, "FUZZY"},
	{QueryOptionTimezone, "TIMEZONE"},
}

func (o QueryOption) String() string {
	for _, n := range queryOptionNames {
		if n.opt == o {
			return n.name
		}
	}
	return fmt.Sprintf("QueryOption(%d)", uint8(o))
}

// QueryOptions is a set of QueryOption flags
type QueryOptions uint8

// NewQueryOptions builds a set from individual options.
func NewQueryOptions(opts ...QueryOption) QueryOptions {
	var s QueryOptions
	for _, o := range opts {
		s |= QueryOptions(o)
	}
	return s
}

// ParseQueryOptions parses option names such as "RELATIONAL" or "fuzzy".
func ParseQueryOptions(names []string) (QueryOptions, error) {
	var s QueryOptions
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, n := range queryOptionNames {
			if n.name == name {
				s = s.With(n.opt)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown query option %q", name)
		}
	}
	return s, nil
}

// Has reports whether the option is in the set.
func (s QueryOptions) Has(o QueryOption) bool {
	return s&QueryOptions(o) != 0
}

// With returns the set with o added.
func (s QueryOptions) With(o QueryOption) QueryOptions {
	return s | QueryOptions(o)
}

// SubsetOf reports whether every option in s is also in other.
func (s QueryOptions) SubsetOf(other QueryOptions) bool {
	return s&^other == 0
}

// Missing returns the options of s that other does not contain.
func (s QueryOptions) Missing(other QueryOptions) QueryOptions {
	return s &^ other
}

func (s QueryOptions) String() string {
	var names []string
	for _, n := range queryOptionNames {
		if s.Has(n.opt) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// IDWithIssuer is a patient identifier qualified by its assigning authority
type IDWithIssuer struct {
	ID     string
	Issuer string
}

// ParseIDWithIssuer parses the "ID^^^Issuer" form String produces.
func ParseIDWithIssuer(s string) IDWithIssuer {
	id, issuer, _ := strings.Cut(s, "^^^")
	return IDWithIssuer{ID: id, Issuer: issuer}
}

func (p IDWithIssuer) String() string {
	if p.Issuer == "" {
		return p.ID
	}
	return p.ID + "^^^" + p.Issuer
}

// Matches reports whether p identifies the same patient as o. An empty
// issuer on either side matches any issuer.
func (p IDWithIssuer) Matches(o IDWithIssuer) bool {
	if p.ID != o.ID {
		return false
	}
	return p.Issuer == "" || o.Issuer == "" || p.Issuer == o.Issuer
}

// InstanceRef locates one stored instance
type InstanceRef struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	TransferSyntaxUID string
	// Location is the storage key of the Part 10 object (file path or object name).
	Location string
	// RetrieveAETitle is the AE the instance is retrievable from.
	RetrieveAETitle string
	// Availability is ONLINE, NEARLINE, OFFLINE or UNAVAILABLE.
	Availability string
}

// Instance availability values
const (
	AvailabilityOnline      = "ONLINE"
	AvailabilityNearline    = "NEARLINE"
	AvailabilityOffline     = "OFFLINE"
	AvailabilityUnavailable = "UNAVAILABLE"
)
