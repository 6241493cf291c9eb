// Package pgstore keeps the archive's index in PostgreSQL. Each level of the
// hierarchy is a table holding the DICOM JSON of its attributes next to an
// index document that query plans are translated against.
package pgstore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
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

// WithFuzzyEncoder sets the encoder of the phonetic keys stored for person
// names. Without one fuzzy matching finds nothing.
func WithFuzzyEncoder(enc fuzzy.Encoder) Option {
	return func(s *Store) {
		s.enc = enc
	}
}

// WithRetrieveAETitle sets the AE title recorded for instances stored without
// one.
func WithRetrieveAETitle(aet string) Option {
	return func(s *Store) {
		s.retrieveAETitle = aet
	}
}

// Store is a PostgreSQL index of stored instances.
type Store struct {
	pool            *pgxpool.Pool
	logger          *slog.Logger
	enc             fuzzy.Encoder
	retrieveAETitle string
}

// New creates a store over pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.NewStorageError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewStorageError("ping", err)
	}
	return New(pool, opts...), nil
}

// Close closes every connection of the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// levelRow is the stored form of one level's attributes
type levelRow struct {
	attrs []byte
	idx   []byte
}

func (s *Store) levelRow(ds *dicom.Dataset) (levelRow, error) {
	attrs, err := ds.MarshalJSON()
	if err != nil {
		return levelRow{}, err
	}
	idx, err := json.Marshal(store.NewDocument(ds, s.enc))
	if err != nil {
		return levelRow{}, err
	}
	return levelRow{attrs: attrs, idx: idx}, nil
}

const (
	upsertPatient = `INSERT INTO patient AS t (pat_id, pat_id_issuer, attrs, idx) VALUES ($1, $2, $3, $4)
ON CONFLICT (pat_id, pat_id_issuer) DO UPDATE SET attrs = t.attrs || EXCLUDED.attrs, idx = t.idx || EXCLUDED.idx
RETURNING pk`
	upsertStudy = `INSERT INTO study AS t (patient_fk, study_iuid, attrs, idx) VALUES ($1, $2, $3, $4)
ON CONFLICT (study_iuid) DO UPDATE SET attrs = t.attrs || EXCLUDED.attrs, idx = t.idx || EXCLUDED.idx
RETURNING pk, patient_fk`
	upsertSeries = `INSERT INTO series AS t (study_fk, series_iuid, modality, attrs, idx) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (series_iuid) DO UPDATE SET modality = COALESCE(NULLIF(EXCLUDED.modality, ''), t.modality),
	attrs = t.attrs || EXCLUDED.attrs, idx = t.idx || EXCLUDED.idx
RETURNING pk`
	upsertInstance = `INSERT INTO instance AS t (series_fk, sop_iuid, sop_cuid, tsuid, location, retrieve_aet, availability, attrs, idx)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (sop_iuid) DO UPDATE SET sop_cuid = EXCLUDED.sop_cuid, tsuid = EXCLUDED.tsuid, location = EXCLUDED.location,
	retrieve_aet = EXCLUDED.retrieve_aet, availability = EXCLUDED.availability, attrs = EXCLUDED.attrs, idx = EXCLUDED.idx`
)

// Put indexes one instance in a single transaction. ds holds its attributes;
// ref locates the stored object. Identifiers missing from ref are taken from
// ds. Attributes of an already known patient, study or series are updated,
// later values winning.
func (s *Store) Put(ctx context.Context, ds *dicom.Dataset, ref types.InstanceRef) error {
	studyUID := ds.GetString(dicom.StudyInstanceUID)
	seriesUID := ds.GetString(dicom.SeriesInstanceUID)
	sopUID := ds.GetString(dicom.SOPInstanceUID)
	if studyUID == "" || seriesUID == "" || sopUID == "" {
		return fmt.Errorf("%w: instance lacks study, series or SOP instance UID", errors.ErrInvalidValue)
	}
	ref.SOPClassUID = cmp.Or(ref.SOPClassUID, ds.GetString(dicom.SOPClassUID))
	ref.RetrieveAETitle = cmp.Or(ref.RetrieveAETitle, s.retrieveAETitle)
	ref.Availability = cmp.Or(ref.Availability, types.AvailabilityOnline)

	split := store.SplitLevels(ds)
	rows := make(map[types.QueryLevel]levelRow, len(split))
	for level, attrs := range split {
		row, err := s.levelRow(attrs)
		if err != nil {
			return fmt.Errorf("encode %s attributes: %w", level, err)
		}
		rows[level] = row
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var patientPK, studyPK, seriesPK, studyPatientPK int64
		row := rows[types.QueryLevelPatient]
		if err := tx.QueryRow(ctx, upsertPatient,
			ds.GetString(dicom.PatientID), ds.GetString(dicom.IssuerOfPatientID), row.attrs, row.idx,
		).Scan(&patientPK); err != nil {
			return fmt.Errorf("patient: %w", err)
		}
		row = rows[types.QueryLevelStudy]
		if err := tx.QueryRow(ctx, upsertStudy, patientPK, studyUID, row.attrs, row.idx).Scan(&studyPK, &studyPatientPK); err != nil {
			return fmt.Errorf("study: %w", err)
		}
		if studyPatientPK != patientPK {
			s.logger.WarnContext(ctx, "Study already indexed under another patient",
				"study_uid", studyUID,
				"patient_id", ds.GetString(dicom.PatientID))
		}
		row = rows[types.QueryLevelSeries]
		if err := tx.QueryRow(ctx, upsertSeries, studyPK, seriesUID, ds.GetString(dicom.Modality), row.attrs, row.idx).Scan(&seriesPK); err != nil {
			return fmt.Errorf("series: %w", err)
		}
		row = rows[types.QueryLevelInstance]
		if _, err := tx.Exec(ctx, upsertInstance, seriesPK, sopUID, ref.SOPClassUID, ref.TransferSyntaxUID,
			ref.Location, ref.RetrieveAETitle, int16(store.AvailabilityRank(ref.Availability)), row.attrs, row.idx); err != nil {
			return fmt.Errorf("instance: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.NewStorageError("put "+sopUID, err)
	}
	s.logger.DebugContext(ctx, "Indexed instance",
		"sop_instance_uid", sopUID,
		"location", ref.Location)
	return nil
}

// MergePatient marks the patient known as from as merged into another
// patient. Merged patients are excluded from searches unless requested.
func (s *Store) MergePatient(ctx context.Context, from types.IDWithIssuer) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE patient SET merged = TRUE WHERE pat_id = $1 AND ($2 = '' OR pat_id_issuer IN ($2, ''))`,
		from.ID, from.Issuer)
	if err != nil {
		return errors.NewStorageError("merge patient", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: patient %s", errors.ErrObjectNotFound, from)
	}
	return nil
}

// SetAccessControlID restricts a study to callers holding id.
func (s *Store) SetAccessControlID(ctx context.Context, studyUID, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE study SET access_control_id = $2 WHERE study_iuid = $1`, studyUID, id)
	if err != nil {
		return errors.NewStorageError("set access control id", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: study %s", errors.ErrObjectNotFound, studyUID)
	}
	return nil
}

const locateInstance = `SELECT st.study_iuid, se.series_iuid, i.sop_cuid, i.tsuid, i.location, i.retrieve_aet, i.availability
FROM instance i JOIN series se ON i.series_fk = se.pk JOIN study st ON se.study_fk = st.pk
WHERE i.sop_iuid = $1 AND ($2 = '' OR st.study_iuid = $2) AND ($3 = '' OR se.series_iuid = $3)`

// Locate implements interfaces.InstanceLocator.
func (s *Store) Locate(ctx context.Context, studyUID, seriesUID, sopUID string) (*types.InstanceRef, error) {
	ref := &types.InstanceRef{SOPInstanceUID: sopUID}
	var availability int16
	err := s.pool.QueryRow(ctx, locateInstance, sopUID, studyUID, seriesUID).Scan(
		&ref.StudyInstanceUID, &ref.SeriesInstanceUID, &ref.SOPClassUID, &ref.TransferSyntaxUID,
		&ref.Location, &ref.RetrieveAETitle, &availability)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: instance %s", errors.ErrObjectNotFound, sopUID)
	}
	if err != nil {
		return nil, errors.NewStorageError("locate "+sopUID, err)
	}
	ref.Availability = store.AvailabilityOfRank(int(availability))
	return ref, nil
}

// Acquire implements query.Backend. The connection reads one consistent
// snapshot until closed.
func (s *Store) Acquire(ctx context.Context) (query.Conn, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		c.Release()
		return nil, err
	}
	return &conn{pooled: c, tx: tx, logger: s.logger}, nil
}
