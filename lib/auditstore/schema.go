// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditstore

// migrations is the ordered schema history. Append only.
var migrations = []string{
	`
	CREATE TABLE controls (
		control_id       TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		risk             TEXT NOT NULL,
		expected_state   BLOB NOT NULL,
		evidence_sources BLOB NOT NULL,
		severity         TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high')),
		check_frequency  TEXT NOT NULL,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);

	CREATE TABLE evidence (
		id            TEXT PRIMARY KEY,
		control_id    TEXT NOT NULL REFERENCES controls (control_id),
		source_system TEXT NOT NULL,
		collected_at  INTEGER NOT NULL,
		compression   TEXT NOT NULL,
		raw_size      INTEGER NOT NULL,
		raw_snapshot  BLOB NOT NULL,
		digest        BLOB NOT NULL,
		UNIQUE (control_id, source_system, collected_at)
	);
	CREATE INDEX idx_evidence_time ON evidence (control_id, collected_at);

	CREATE TABLE evaluations (
		id           TEXT PRIMARY KEY,
		control_id   TEXT NOT NULL REFERENCES controls (control_id),
		evidence_id  TEXT REFERENCES evidence (id),
		evaluated_at INTEGER NOT NULL,
		status       TEXT NOT NULL CHECK (status IN ('PASS', 'FAIL')),
		severity     TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high')),
		remediation  TEXT NOT NULL,
		details      BLOB NOT NULL,
		UNIQUE (control_id, evaluated_at)
	);

	CREATE TABLE alerts (
		id              TEXT PRIMARY KEY,
		control_id      TEXT NOT NULL REFERENCES controls (control_id),
		created_at      INTEGER NOT NULL,
		severity        TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high')),
		message         TEXT NOT NULL,
		remediation     TEXT NOT NULL,
		acknowledged    INTEGER NOT NULL DEFAULT 0,
		acknowledged_at INTEGER
	);
	CREATE INDEX idx_alerts_time ON alerts (created_at);

	CREATE TABLE runs (
		run_at      INTEGER PRIMARY KEY,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		state       TEXT NOT NULL CHECK (state IN ('running', 'completed', 'failed')),
		summary     BLOB,
		error       TEXT NOT NULL DEFAULT ''
	);

	CREATE TRIGGER evidence_immutable_update BEFORE UPDATE ON evidence
	BEGIN
		SELECT RAISE(ABORT, 'evidence is immutable');
	END;
	CREATE TRIGGER evidence_immutable_delete BEFORE DELETE ON evidence
	BEGIN
		SELECT RAISE(ABORT, 'evidence is immutable');
	END;

	CREATE TRIGGER evaluations_immutable_update BEFORE UPDATE ON evaluations
	BEGIN
		SELECT RAISE(ABORT, 'evaluations are immutable');
	END;
	CREATE TRIGGER evaluations_immutable_delete BEFORE DELETE ON evaluations
	BEGIN
		SELECT RAISE(ABORT, 'evaluations are immutable');
	END;

	CREATE TRIGGER alerts_acknowledgement_only BEFORE UPDATE ON alerts
	WHEN NEW.id IS NOT OLD.id
		OR NEW.control_id IS NOT OLD.control_id
		OR NEW.created_at IS NOT OLD.created_at
		OR NEW.severity IS NOT OLD.severity
		OR NEW.message IS NOT OLD.message
		OR NEW.remediation IS NOT OLD.remediation
	BEGIN
		SELECT RAISE(ABORT, 'only alert acknowledgement may change');
	END;
	CREATE TRIGGER alerts_immutable_delete BEFORE DELETE ON alerts
	BEGIN
		SELECT RAISE(ABORT, 'alerts are never deleted');
	END;
	`,
}
