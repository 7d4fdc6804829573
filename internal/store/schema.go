package store

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'new',
	generation  INTEGER NOT NULL DEFAULT 1,
	config      TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS source_files (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	object_key    TEXT NOT NULL,
	filename      TEXT NOT NULL,
	mime_type     TEXT NOT NULL,
	size          INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_files_project ON source_files(project_id);

CREATE TABLE IF NOT EXISTS content_items (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	file_id     TEXT NOT NULL,
	position    INTEGER NOT NULL,
	type        TEXT NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	summary     TEXT NOT NULL DEFAULT '',
	keywords    TEXT NOT NULL DEFAULT '',
	is_selected INTEGER NOT NULL DEFAULT 0,
	chapter_id  TEXT NOT NULL DEFAULT '',
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	UNIQUE(file_id, position)
);
CREATE INDEX IF NOT EXISTS idx_content_items_project ON content_items(project_id);

CREATE TABLE IF NOT EXISTS chapters (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	title      TEXT NOT NULL,
	intro      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	UNIQUE(project_id, position)
);

CREATE TABLE IF NOT EXISTS narratives (
	content_id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	text       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_narratives_project ON narratives(project_id);

CREATE TABLE IF NOT EXISTS stage_units (
	project_id    TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	stage         TEXT NOT NULL,
	unit_id       TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(project_id, generation, stage, unit_id)
);

CREATE TABLE IF NOT EXISTS stage_transitions (
	project_id      TEXT NOT NULL,
	generation      INTEGER NOT NULL,
	stage           TEXT NOT NULL,
	transitioned_at TIMESTAMP NOT NULL,
	PRIMARY KEY(project_id, generation, stage)
);
`
