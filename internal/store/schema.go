package store

const Schema = `
CREATE TABLE IF NOT EXISTS artists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	thumbnails TEXT,  -- JSON array of {url,width,height}
	image_local TEXT,
	followed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artists_followed ON artists(followed);

CREATE TABLE IF NOT EXISTS albums (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'Album',
	artist_id TEXT REFERENCES artists(id) ON DELETE CASCADE,
	thumbnails TEXT,  -- JSON array
	playlist_id TEXT,
	year TEXT,
	image_local TEXT
);

CREATE INDEX IF NOT EXISTS idx_albums_artist_id ON albums(artist_id);

CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	duration INTEGER,
	artists TEXT,  -- JSON array of {id,name}
	album_id TEXT REFERENCES albums(id) ON DELETE SET NULL,
	track_number INTEGER NOT NULL DEFAULT 0,
	has_lyrics BOOLEAN NOT NULL DEFAULT 0,
	lyrics_local TEXT,
	file_path TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	artist_valid BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tracks_album_id ON tracks(album_id);
CREATE INDEX IF NOT EXISTS idx_tracks_status ON tracks(status);

CREATE TABLE IF NOT EXISTS artist_subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_id TEXT NOT NULL UNIQUE REFERENCES artists(id) ON DELETE CASCADE,
	mode TEXT NOT NULL DEFAULT 'full',
	enabled BOOLEAN NOT NULL DEFAULT 1,
	sync_interval_hours INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_synced_at DATETIME,
	last_error TEXT
);

CREATE TABLE IF NOT EXISTS album_subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	album_id TEXT NOT NULL UNIQUE REFERENCES albums(id) ON DELETE CASCADE,
	artist_id TEXT REFERENCES artists(id) ON DELETE CASCADE,
	mode TEXT NOT NULL DEFAULT 'download',
	download_status TEXT NOT NULL DEFAULT 'idle',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_synced_at DATETIME,
	last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_album_subscriptions_artist_id ON album_subscriptions(artist_id);

CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	payload TEXT,  -- JSON
	status TEXT NOT NULL DEFAULT 'queued',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	priority INTEGER NOT NULL DEFAULT 0,
	scheduled_at DATETIME,
	started_at DATETIME,
	finished_at DATETIME,
	last_error TEXT,
	result TEXT,  -- JSON
	created_at DATETIME NOT NULL,
	reserved_by TEXT,
	user_id INTEGER
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);
CREATE INDEX IF NOT EXISTS idx_jobs_reserve ON jobs(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	type TEXT NOT NULL DEFAULT 'string',
	description TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	revoked BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_session_tokens_expires_at ON session_tokens(expires_at);
`
