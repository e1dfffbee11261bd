package store

// schema is applied with CREATE TABLE IF NOT EXISTS on every startup, the
// same idempotent-migration approach as the source project's database.init_db.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	stream_type TEXT NOT NULL,
	start_datetime TEXT NOT NULL,
	end_datetime TEXT,
	interval_seconds INTEGER NOT NULL,
	framerate INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	capture_path TEXT NOT NULL,
	naming_pattern TEXT NOT NULL,
	capture_count INTEGER NOT NULL DEFAULT 0,
	storage_size INTEGER NOT NULL DEFAULT 0,
	warning_message TEXT,
	time_window_enabled INTEGER NOT NULL DEFAULT 0,
	time_window_start TEXT,
	time_window_end TEXT,
	next_scheduled_capture_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS captures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	captured_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	resolution TEXT NOT NULL,
	framerate INTEGER NOT NULL,
	quality TEXT NOT NULL,
	start_capture_id INTEGER,
	end_capture_id INTEGER,
	start_time TEXT,
	end_time TEXT,
	total_frames INTEGER NOT NULL,
	duration_seconds REAL NOT NULL,
	status TEXT NOT NULL DEFAULT 'processing',
	progress REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_job_id ON captures(job_id);
CREATE INDEX IF NOT EXISTS idx_videos_job_id ON processed_videos(job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`
