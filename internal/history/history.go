// Package history keeps a local index of completed articles so the archive
// can be browsed and searched offline.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperknow/hyperknow/models"
)

// Store is a SQLite-backed article history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dbPath. Pass ":memory:"
// for an ephemeral store.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		conversation_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		markdown TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		reading_time INTEGER DEFAULT 0,
		word_count INTEGER DEFAULT 0,
		character_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_articles_user ON articles(user_id);
	CREATE INDEX IF NOT EXISTS idx_articles_generated_at ON articles(generated_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Record upserts a completed article. Recording the same conversation twice
// replaces the stored row.
func (s *Store) Record(a models.Article) error {
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO articles (conversation_id, user_id, topic, markdown, generated_at, reading_time, word_count, character_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			topic = excluded.topic,
			markdown = excluded.markdown,
			generated_at = excluded.generated_at,
			reading_time = excluded.reading_time,
			word_count = excluded.word_count,
			character_count = excluded.character_count`,
		a.ConversationID, a.UserID, a.Topic, a.Markdown,
		a.GeneratedAt.Format(time.RFC3339), a.ReadingTime, a.WordCount, a.CharacterCount)
	if err != nil {
		return fmt.Errorf("record article: %w", err)
	}
	return nil
}

// List returns a user's recorded articles, newest first.
func (s *Store) List(userID string) ([]models.Article, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id, user_id, topic, markdown, generated_at, reading_time, word_count, character_count
		FROM articles WHERE user_id = ? ORDER BY generated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArticles(rows)
}

// Search returns a user's articles whose topic or body matches term,
// newest first.
func (s *Store) Search(userID, term string) ([]models.Article, error) {
	like := "%" + term + "%"
	rows, err := s.db.Query(`
		SELECT conversation_id, user_id, topic, markdown, generated_at, reading_time, word_count, character_count
		FROM articles
		WHERE user_id = ? AND (topic LIKE ? OR markdown LIKE ?)
		ORDER BY generated_at DESC`, userID, like, like)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArticles(rows)
}

// Get returns one recorded article by conversation id.
func (s *Store) Get(conversationID string) (models.Article, error) {
	row := s.db.QueryRow(`
		SELECT conversation_id, user_id, topic, markdown, generated_at, reading_time, word_count, character_count
		FROM articles WHERE conversation_id = ?`, conversationID)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return models.Article{}, fmt.Errorf("no recorded article for conversation %s", conversationID)
	}
	if err != nil {
		return models.Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (models.Article, error) {
	var a models.Article
	var generatedAt string
	err := row.Scan(&a.ConversationID, &a.UserID, &a.Topic, &a.Markdown,
		&generatedAt, &a.ReadingTime, &a.WordCount, &a.CharacterCount)
	if err != nil {
		return models.Article{}, err
	}
	if t, perr := time.Parse(time.RFC3339, generatedAt); perr == nil {
		a.GeneratedAt = t
	}
	return a, nil
}

func scanArticles(rows *sql.Rows) ([]models.Article, error) {
	var out []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
