package query

import (
	"context"
	"strings"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
)

// newDataset builds a dataset from "Keyword=value" pairs; values of
// multi-valued attributes are separated by '|'.
func newDataset(t *testing.T, pairs ...string) *dicom.Dataset {
	t.Helper()
	ds := dicom.NewDataset()
	for _, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		tag, err := dicom.ParseTag(name)
		if err != nil {
			t.Fatalf("ParseTag(%q): %v", name, err)
		}
		if err := ds.SetStrings(tag, strings.Split(value, "|")...); err != nil {
			t.Fatalf("SetStrings(%s): %v", name, err)
		}
	}
	return ds
}

func newRecord(t *testing.T, pairs ...string) *Record {
	t.Helper()
	return &Record{Attrs: newDataset(t, pairs...)}
}

// fakeBackend evaluates plans over fixed records and tracks connections
type fakeBackend struct {
	records    map[types.QueryLevel][]*Record
	acquired   int
	released   int
	countCalls int
	queryErr   error
}

func (b *fakeBackend) Acquire(ctx context.Context) (Conn, error) {
	b.acquired++
	return &fakeConn{backend: b}, nil
}

type fakeConn struct {
	backend *fakeBackend
	closed  bool
}

func (c *fakeConn) Count(ctx context.Context, plan *Plan) (int64, error) {
	c.backend.countCalls++
	return CountMatches(plan, c.backend.records[plan.Level]), nil
}

func (c *fakeConn) Query(ctx context.Context, plan *Plan) (Cursor, error) {
	if c.backend.queryErr != nil {
		return nil, c.backend.queryErr
	}
	return &fakeCursor{matches: Evaluate(plan, c.backend.records[plan.Level])}, nil
}

func (c *fakeConn) Close() error {
	if !c.closed {
		c.closed = true
		c.backend.released++
	}
	return nil
}

type fakeCursor struct {
	matches []*dicom.Dataset
	current *dicom.Dataset
	closed  bool
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if len(c.matches) == 0 {
		return false
	}
	c.current, c.matches = c.matches[0], c.matches[1:]
	return true
}

func (c *fakeCursor) Record() *dicom.Dataset { return c.current }
func (c *fakeCursor) Err() error             { return nil }
func (c *fakeCursor) Close() error {
	c.closed = true
	return nil
}

type fakeCapabilities map[string]*types.AEConfig

func (f fakeCapabilities) Lookup(ctx context.Context, aet string) (*types.AEConfig, error) {
	ae, ok := f[aet]
	if !ok {
		return nil, errors.NewCapabilityError(aet, "unknown application entity")
	}
	return ae, nil
}

type fakeFilters struct{}

func (fakeFilters) AlwaysInclude(level types.QueryLevel) []dicom.Tag {
	return []dicom.Tag{UniqueKey(level)}
}

func (fakeFilters) Fuzzy() fuzzy.Encoder {
	return fuzzy.NewSoundex()
}

func archiveAE(maxResults int, opts ...types.QueryOption) *types.AEConfig {
	supported := types.NewQueryOptions(opts...)
	return &types.AEConfig{
		AETitle:   "DCM4CHEE",
		Installed: true,
		TransferCapabilities: []types.TransferCapability{
			{SOPClassUID: types.StudyRootQueryRetrieveInformationModelFind, Role: types.RoleSCP, QueryOptions: supported},
			{SOPClassUID: types.PatientRootQueryRetrieveInformationModelFind, Role: types.RoleSCP, QueryOptions: supported},
		},
		MaxResults:     maxResults,
		TimezoneOffset: "+0000",
	}
}
