package repository

// Schema definitions for the detection store.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS detection_batches (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    schema_version INTEGER NOT NULL DEFAULT 1
);
`

// schemaRecords stores one row per detected disease. Symptoms are a JSON
// array so a record survives later lexicon edits unchanged.
const schemaRecords = `
CREATE TABLE IF NOT EXISTS detection_records (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL REFERENCES detection_batches(id),
    position INTEGER NOT NULL,
    disease TEXT NOT NULL,
    medication_advice TEXT NOT NULL,
    doctor_advice TEXT NOT NULL,
    symptoms TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detection_records_batch ON detection_records(batch_id, position);
CREATE INDEX IF NOT EXISTS idx_detection_records_disease ON detection_records(disease);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaRecords,
	}
}
