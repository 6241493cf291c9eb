// Package memstore keeps the archive's index in memory. It backs development
// deployments and tests, evaluating query plans directly on datasets.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Option configures a Store instance.
type Option func(*Store)

// WithLogger overrides the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRetrieveAETitle sets the AE title recorded for instances stored without
// one.
func WithRetrieveAETitle(aet string) Option {
	return func(s *Store) {
		s.retrieveAETitle = aet
	}
}

type patient struct {
	id      types.IDWithIssuer
	attrs   *dicom.Dataset
	merged  bool
	studies []*study
}

type study struct {
	patient         *patient
	attrs           *dicom.Dataset
	accessControlID string
	series          []*series
}

type series struct {
	study     *study
	attrs     *dicom.Dataset
	instances []*instance
}

type instance struct {
	series *series
	attrs  *dicom.Dataset
	ref    types.InstanceRef
}

// Store is an in-memory index of stored instances. It is safe for concurrent
// use; every query connection reads a consistent view.
type Store struct {
	mu        sync.RWMutex
	patients  []*patient
	studies   map[string]*study
	series    map[string]*series
	instances map[string]*instance

	retrieveAETitle string
	logger          *slog.Logger
	open            atomic.Int64
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		studies:   make(map[string]*study),
		series:    make(map[string]*series),
		instances: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Put indexes one instance. ds holds its attributes; ref locates the stored
// object. Identifiers missing from ref are taken from ds. Attributes of an
// already known patient, study or series are updated, later values winning.
func (s *Store) Put(ds *dicom.Dataset, ref types.InstanceRef) error {
	studyUID := ds.GetString(dicom.StudyInstanceUID)
	seriesUID := ds.GetString(dicom.SeriesInstanceUID)
	sopUID := ds.GetString(dicom.SOPInstanceUID)
	if studyUID == "" || seriesUID == "" || sopUID == "" {
		return fmt.Errorf("%w: instance lacks study, series or SOP instance UID", errors.ErrInvalidValue)
	}
	ref.StudyInstanceUID = cmp.Or(ref.StudyInstanceUID, studyUID)
	ref.SeriesInstanceUID = cmp.Or(ref.SeriesInstanceUID, seriesUID)
	ref.SOPInstanceUID = cmp.Or(ref.SOPInstanceUID, sopUID)
	ref.SOPClassUID = cmp.Or(ref.SOPClassUID, ds.GetString(dicom.SOPClassUID))
	ref.RetrieveAETitle = cmp.Or(ref.RetrieveAETitle, s.retrieveAETitle)
	ref.Availability = cmp.Or(ref.Availability, types.AvailabilityOnline)

	split := store.SplitLevels(ds)
	pid := types.IDWithIssuer{
		ID:     ds.GetString(dicom.PatientID),
		Issuer: ds.GetString(dicom.IssuerOfPatientID),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.studies[studyUID]
	if !ok {
		p := s.patientLocked(pid)
		st = &study{patient: p, attrs: dicom.NewDataset()}
		p.studies = append(p.studies, st)
		s.studies[studyUID] = st
	}
	st.patient.attrs.Merge(split[types.QueryLevelPatient])
	st.attrs.Merge(split[types.QueryLevelStudy])

	se, ok := s.series[seriesUID]
	if !ok {
		se = &series{study: st, attrs: dicom.NewDataset()}
		st.series = append(st.series, se)
		s.series[seriesUID] = se
	}
	se.attrs.Merge(split[types.QueryLevelSeries])

	inst, ok := s.instances[sopUID]
	if !ok {
		inst = &instance{series: se}
		se.instances = append(se.instances, inst)
		s.instances[sopUID] = inst
	}
	inst.attrs = split[types.QueryLevelInstance]
	inst.ref = ref
	return nil
}

func (s *Store) patientLocked(pid types.IDWithIssuer) *patient {
	for _, p := range s.patients {
		if p.id == pid {
			return p
		}
	}
	p := &patient{id: pid, attrs: dicom.NewDataset()}
	s.patients = append(s.patients, p)
	return p
}

// MergePatient marks the patient known as from as merged into another
// patient. Merged patients are excluded from searches unless requested.
func (s *Store) MergePatient(from types.IDWithIssuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patients {
		if p.id.Matches(from) {
			p.merged = true
			return nil
		}
	}
	return fmt.Errorf("%w: patient %s", errors.ErrObjectNotFound, from)
}

// SetAccessControlID restricts a study to callers holding id.
func (s *Store) SetAccessControlID(studyUID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.studies[studyUID]
	if !ok {
		return fmt.Errorf("%w: study %s", errors.ErrObjectNotFound, studyUID)
	}
	st.accessControlID = id
	return nil
}

// Locate implements interfaces.InstanceLocator.
func (s *Store) Locate(ctx context.Context, studyUID, seriesUID, sopUID string) (*types.InstanceRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[sopUID]
	if !ok || (studyUID != "" && inst.ref.StudyInstanceUID != studyUID) ||
		(seriesUID != "" && inst.ref.SeriesInstanceUID != seriesUID) {
		return nil, fmt.Errorf("%w: instance %s", errors.ErrObjectNotFound, sopUID)
	}
	ref := inst.ref
	return &ref, nil
}

// OpenConns returns the number of connections not yet closed.
func (s *Store) OpenConns() int64 {
	return s.open.Load()
}

// Acquire implements query.Backend.
func (s *Store) Acquire(ctx context.Context) (query.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.open.Add(1)
	return &conn{store: s}, nil
}

// records builds the match records of level with ancestor and derived
// attributes.
func (s *Store) records(level types.QueryLevel) []*query.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*query.Record
	for _, p := range s.patients {
		if level == types.QueryLevelPatient {
			out = append(out, &query.Record{Attrs: p.record(), Merged: p.merged})
			continue
		}
		for _, st := range p.studies {
			base := p.attrs.Clone()
			if level == types.QueryLevelStudy {
				base.Merge(st.record())
				out = append(out, &query.Record{Attrs: base, Merged: p.merged, AccessControlID: st.accessControlID})
				continue
			}
			base.Merge(st.attrs)
			for _, se := range st.series {
				if level == types.QueryLevelSeries {
					attrs := base.Clone()
					attrs.Merge(se.record())
					out = append(out, &query.Record{Attrs: attrs, Merged: p.merged, AccessControlID: st.accessControlID})
					continue
				}
				seriesBase := base.Clone()
				seriesBase.Merge(se.attrs)
				for _, inst := range se.instances {
					attrs := seriesBase.Clone()
					attrs.Merge(inst.record())
					out = append(out, &query.Record{Attrs: attrs, Merged: p.merged, AccessControlID: st.accessControlID})
				}
			}
		}
	}
	return out
}

func (p *patient) record() *dicom.Dataset {
	ds := p.attrs.Clone()
	d := store.Derived{Studies: int64(len(p.studies))}
	for _, st := range p.studies {
		d.Series += int64(len(st.series))
		for _, se := range st.series {
			d.Instances += int64(len(se.instances))
		}
	}
	d.Apply(types.QueryLevelPatient, ds)
	return ds
}

func (st *study) record() *dicom.Dataset {
	ds := st.attrs.Clone()
	d := store.Derived{Series: int64(len(st.series))}
	for _, se := range st.series {
		if m := se.attrs.GetString(dicom.Modality); m != "" {
			d.Modalities = append(d.Modalities, m)
		}
		for _, inst := range se.instances {
			d.AddInstance(inst.ref)
		}
	}
	d.Apply(types.QueryLevelStudy, ds)
	return ds
}

func (se *series) record() *dicom.Dataset {
	ds := se.attrs.Clone()
	var d store.Derived
	for _, inst := range se.instances {
		d.AddInstance(inst.ref)
	}
	d.Apply(types.QueryLevelSeries, ds)
	return ds
}

func (inst *instance) record() *dicom.Dataset {
	ds := inst.attrs.Clone()
	var d store.Derived
	d.AddInstance(inst.ref)
	d.Apply(types.QueryLevelInstance, ds)
	return ds
}
