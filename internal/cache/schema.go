package cache

const schemaSQL = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT 'local',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	folder_path TEXT NOT NULL,
	tags_locked INTEGER NOT NULL DEFAULT 0,
	banner_image_url TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
CREATE INDEX IF NOT EXISTS idx_documents_folder_path ON documents(folder_path);

CREATE TABLE IF NOT EXISTS document_tags (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(document_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_document_tags_tag ON document_tags(tag);

CREATE TABLE IF NOT EXISTS document_embeddings (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	model TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	vector BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(document_id, model)
);

CREATE TABLE IF NOT EXISTS document_chunk_embeddings (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	model TEXT NOT NULL,
	chunk_text TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	vector BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(document_id, chunk_index, model)
);

CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
