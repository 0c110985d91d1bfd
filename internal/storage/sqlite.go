package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"carecompanion/pkg"
)

// SQLiteStore is the production DurableStore. A single connection with WAL
// journaling serialises concurrent writers for the same subject, which is
// what keeps the append-only logs safe without in-process locking.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	diagnosis TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS medications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS memory_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'assistant',
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS daily_activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id TEXT NOT NULL,
	activity TEXT NOT NULL,
	is_active BOOLEAN DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS health_notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id TEXT NOT NULL,
	note TEXT NOT NULL,
	severity TEXT DEFAULT 'low',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS loved_ones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id TEXT NOT NULL,
	name TEXT NOT NULL,
	relationship TEXT NOT NULL,
	phone_number TEXT,
	profile_picture TEXT,
	mentions INTEGER DEFAULT 0,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS loved_one_photos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	loved_one_id INTEGER NOT NULL,
	photo_path TEXT NOT NULL,
	description TEXT,
	FOREIGN KEY (loved_one_id) REFERENCES loved_ones(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS loved_one_audio (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	loved_one_id INTEGER NOT NULL,
	audio_path TEXT NOT NULL,
	description TEXT,
	duration_seconds INTEGER DEFAULT 0,
	FOREIGN KEY (loved_one_id) REFERENCES loved_ones(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS comfort_interactions (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	loved_one_id INTEGER,
	kind TEXT NOT NULL,
	details TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	input TEXT NOT NULL,
	route TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_logs_patient ON memory_logs(patient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_daily_activities_patient ON daily_activities(patient_id);
CREATE INDEX IF NOT EXISTS idx_health_notes_patient ON health_notes(patient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_loved_ones_patient ON loved_ones(patient_id);
CREATE INDEX IF NOT EXISTS idx_interactions_patient ON interactions(patient_id);
`

// NewSQLiteStore opens (and initialises) the database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("setting journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeedProfile inserts or replaces a subject profile and its medications.
func (s *SQLiteStore) SeedProfile(ctx context.Context, subjectID string, profile pkg.Profile) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO patients (id, name, age, diagnosis) VALUES (?, ?, ?, ?)`,
		subjectID, profile.Name, profile.Age, profile.Diagnosis); err != nil {
		return fmt.Errorf("seeding profile: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM medications WHERE patient_id = ?`, subjectID); err != nil {
		return fmt.Errorf("clearing medications: %w", err)
	}
	for _, med := range profile.Medications {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO medications (patient_id, summary) VALUES (?, ?)`, subjectID, med); err != nil {
			return fmt.Errorf("seeding medication: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Profile(ctx context.Context, subjectID string) (*pkg.Profile, error) {
	var p pkg.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT name, age, diagnosis FROM patients WHERE id = ?`, subjectID).
		Scan(&p.Name, &p.Age, &p.Diagnosis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM medications WHERE patient_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("loading medications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var med string
		if err := rows.Scan(&med); err != nil {
			return nil, err
		}
		p.Medications = append(p.Medications, med)
	}
	return &p, rows.Err()
}

func (s *SQLiteStore) AppendConversation(ctx context.Context, subjectID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_logs (patient_id, role, content) VALUES (?, ?, ?)`,
		subjectID, role, content)
	if err != nil {
		return fmt.Errorf("appending conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentConversation(ctx context.Context, subjectID string, limit int) ([]pkg.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM memory_logs WHERE patient_id = ? ORDER BY id DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	defer rows.Close()

	var msgs []pkg.ConversationMessage
	for rows.Next() {
		var m pkg.ConversationMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows come back newest-first; callers expect chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) AddActivity(ctx context.Context, subjectID, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_activities (patient_id, activity) VALUES (?, ?)`,
		subjectID, description)
	if err != nil {
		return fmt.Errorf("adding activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveActivities(ctx context.Context, subjectID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, activity, created_at FROM daily_activities WHERE patient_id = ? AND is_active = 1 ORDER BY id`,
		subjectID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		a := Activity{Active: true}
		if err := rows.Scan(&a.ID, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeactivateActivity(ctx context.Context, subjectID string, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE daily_activities SET is_active = 0 WHERE patient_id = ? AND id = ?`,
		subjectID, id)
	if err != nil {
		return fmt.Errorf("deactivating activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddHealthNote(ctx context.Context, subjectID, note string, severity pkg.Severity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_notes (patient_id, note, severity) VALUES (?, ?, ?)`,
		subjectID, note, string(severity))
	if err != nil {
		return fmt.Errorf("adding health note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentHealthNotes(ctx context.Context, subjectID string, limit int) ([]HealthNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note, severity, created_at FROM health_notes WHERE patient_id = ? ORDER BY id DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading health notes: %w", err)
	}
	defer rows.Close()

	var out []HealthNote
	for rows.Next() {
		var n HealthNote
		var sev string
		if err := rows.Scan(&n.ID, &n.Note, &sev, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Severity = pkg.Severity(sev)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) LovedOnes(ctx context.Context, subjectID string) ([]LovedOne, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, relationship, COALESCE(phone_number, ''), COALESCE(profile_picture, ''), mentions
		 FROM loved_ones WHERE patient_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("loading loved ones: %w", err)
	}
	defer rows.Close()

	var out []LovedOne
	for rows.Next() {
		var lo LovedOne
		if err := rows.Scan(&lo.ID, &lo.Name, &lo.Relationship, &lo.PhoneNumber, &lo.ProfilePicture, &lo.Mentions); err != nil {
			return nil, err
		}
		out = append(out, lo)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindLovedOne(ctx context.Context, subjectID, nameOrRelation string) (*LovedOne, error) {
	all, err := s.LovedOnes(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(nameOrRelation))
	if needle == "" {
		return nil, nil
	}
	for _, lo := range all {
		if matchesPerson(needle, lo.Name) || matchesPerson(needle, lo.Relationship) {
			out := lo
			return &out, nil
		}
	}
	return nil, nil
}

func (s *SQLiteStore) MostMentioned(ctx context.Context, subjectID string) (*LovedOne, error) {
	var lo LovedOne
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, relationship, COALESCE(phone_number, ''), COALESCE(profile_picture, ''), mentions
		 FROM loved_ones WHERE patient_id = ? ORDER BY mentions DESC, id LIMIT 1`, subjectID).
		Scan(&lo.ID, &lo.Name, &lo.Relationship, &lo.PhoneNumber, &lo.ProfilePicture, &lo.Mentions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading most mentioned: %w", err)
	}
	return &lo, nil
}

// SeedLovedOne inserts a directory entry and returns its id.
func (s *SQLiteStore) SeedLovedOne(ctx context.Context, subjectID string, lo LovedOne) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO loved_ones (patient_id, name, relationship, phone_number, profile_picture, mentions)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		subjectID, lo.Name, lo.Relationship, lo.PhoneNumber, lo.ProfilePicture, lo.Mentions)
	if err != nil {
		return 0, fmt.Errorf("seeding loved one: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) PhotosOf(ctx context.Context, lovedOneID int64) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, photo_path, COALESCE(description, '') FROM loved_one_photos WHERE loved_one_id = ? ORDER BY id`,
		lovedOneID)
	if err != nil {
		return nil, fmt.Errorf("loading photos: %w", err)
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.Path, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AudioOf(ctx context.Context, lovedOneID int64) ([]Audio, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, audio_path, COALESCE(description, ''), duration_seconds FROM loved_one_audio WHERE loved_one_id = ? ORDER BY id`,
		lovedOneID)
	if err != nil {
		return nil, fmt.Errorf("loading audio: %w", err)
	}
	defer rows.Close()

	var out []Audio
	for rows.Next() {
		var a Audio
		if err := rows.Scan(&a.ID, &a.Path, &a.Description, &a.DurationSeconds); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LogComfortInteraction(ctx context.Context, subjectID string, lovedOneID *int64, kind, details string) error {
	var loID any
	if lovedOneID != nil {
		loID = *lovedOneID
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO comfort_interactions (id, patient_id, loved_one_id, kind, details) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), subjectID, loID, kind, details); err != nil {
		return fmt.Errorf("logging comfort interaction: %w", err)
	}
	if lovedOneID != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE loved_ones SET mentions = mentions + 1 WHERE id = ?`, *lovedOneID); err != nil {
			return fmt.Errorf("bumping mentions: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) LogInteraction(ctx context.Context, subjectID, input string, route pkg.RouteLabel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, patient_id, input, route) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), subjectID, input, string(route))
	if err != nil {
		return fmt.Errorf("logging interaction: %w", err)
	}
	return nil
}
