package pgstore

import (
	"context"
)

// Schema creates the tables of the index. Each level keeps the DICOM JSON of
// its attributes in attrs and their index document in idx; instance rows
// also locate the stored object.
const Schema = `
CREATE TABLE IF NOT EXISTS patient (
	pk            BIGSERIAL PRIMARY KEY,
	pat_id        TEXT NOT NULL,
	pat_id_issuer TEXT NOT NULL DEFAULT '',
	merged        BOOLEAN NOT NULL DEFAULT FALSE,
	attrs         JSONB NOT NULL,
	idx           JSONB NOT NULL,
	UNIQUE (pat_id, pat_id_issuer)
);

CREATE TABLE IF NOT EXISTS study (
	pk                BIGSERIAL PRIMARY KEY,
	patient_fk        BIGINT NOT NULL REFERENCES patient (pk),
	study_iuid        TEXT NOT NULL UNIQUE,
	access_control_id TEXT NOT NULL DEFAULT '',
	attrs             JSONB NOT NULL,
	idx               JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS series (
	pk          BIGSERIAL PRIMARY KEY,
	study_fk    BIGINT NOT NULL REFERENCES study (pk),
	series_iuid TEXT NOT NULL UNIQUE,
	modality    TEXT NOT NULL DEFAULT '',
	attrs       JSONB NOT NULL,
	idx         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS instance (
	pk           BIGSERIAL PRIMARY KEY,
	series_fk    BIGINT NOT NULL REFERENCES series (pk),
	sop_iuid     TEXT NOT NULL UNIQUE,
	sop_cuid     TEXT NOT NULL DEFAULT '',
	tsuid        TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL,
	retrieve_aet TEXT NOT NULL DEFAULT '',
	availability SMALLINT NOT NULL DEFAULT 0,
	attrs        JSONB NOT NULL,
	idx          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS study_patient_fk ON study (patient_fk);
CREATE INDEX IF NOT EXISTS series_study_fk ON series (study_fk);
CREATE INDEX IF NOT EXISTS instance_series_fk ON instance (series_fk);
CREATE INDEX IF NOT EXISTS patient_idx ON patient USING GIN (idx);
CREATE INDEX IF NOT EXISTS study_idx ON study USING GIN (idx);
CREATE INDEX IF NOT EXISTS series_idx ON series USING GIN (idx);
CREATE INDEX IF NOT EXISTS instance_idx ON instance USING GIN (idx);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Index schema ready")
	return nil
}
