package project

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	active INTEGER NOT NULL DEFAULT 1,
	temperature REAL NOT NULL DEFAULT 0,
	time_step REAL NOT NULL DEFAULT 1,
	units TEXT NOT NULL,
	number_of_configurations INTEGER NOT NULL DEFAULT 0,
	number_of_atoms INTEGER NOT NULL DEFAULT 0,
	sample_rate INTEGER NOT NULL DEFAULT 1,
	box TEXT NOT NULL DEFAULT '[0,0,0]',
	element_map TEXT NOT NULL DEFAULT '{}',
	version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS species (
	experiment_id INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	indices TEXT NOT NULL,
	mass REAL NOT NULL DEFAULT 0,
	charge REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (experiment_id, name)
);

CREATE TABLE IF NOT EXISTS properties (
	experiment_id INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	PRIMARY KEY (experiment_id, name)
);

CREATE TABLE IF NOT EXISTS read_files (
	experiment_id INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	configurations INTEGER NOT NULL,
	added_at INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, path)
);

CREATE TABLE IF NOT EXISTS computations (
	id TEXT PRIMARY KEY,
	experiment_id INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	parameters TEXT NOT NULL,
	version INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_computations_lookup ON computations(experiment_id, name, version);

CREATE TABLE IF NOT EXISTS computation_attributes (
	computation_id TEXT NOT NULL REFERENCES computations(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (computation_id, name)
);

CREATE TABLE IF NOT EXISTS computation_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	computation_id TEXT NOT NULL REFERENCES computations(id) ON DELETE CASCADE,
	subjects TEXT NOT NULL,
	scalars TEXT NOT NULL,
	series TEXT NOT NULL
);
`
