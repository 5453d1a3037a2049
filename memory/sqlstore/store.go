// Package sqlstore is a MySQL backed core.MemoryStore built on gorm. Records
// are prefiltered with LIKE clauses in SQL and ranked in Go with the same
// keyword scoring as the in-memory store.
package sqlstore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/memory"
)

// Row is the persisted form of a core.MemoryRecord.
type Row struct {
	ID        string    `gorm:"primaryKey;size:36"`
	AppName   string    `gorm:"size:64;not null;index:idx_memory_scope"`
	UserID    string    `gorm:"size:128;not null;index:idx_memory_scope"`
	SessionID string    `gorm:"size:128;not null;uniqueIndex:idx_memory_event"`
	EventID   string    `gorm:"size:64;not null;uniqueIndex:idx_memory_event"`
	Author    string    `gorm:"size:64;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName implements gorm's tabler interface.
func (Row) TableName() string { return "planner_memories" }

// Options configures the store.
type Options struct {
	// CandidateFactor multiplies the search limit to size the SQL prefilter.
	CandidateFactor int
	BatchSize       int
	Logger          logging.Logger
}

// Store implements core.MemoryStore.
type Store struct {
	db   *gorm.DB
	opts Options
}

// New wraps an open gorm handle and migrates the memory table.
func New(db *gorm.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		CandidateFactor: 20,
		BatchSize:       100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("migrate memory table: %w", err)
	}

	return &Store{db: db, opts: opts}, nil
}

// Open connects to MySQL using dsn and returns a migrated store.
func Open(dsn string, optFns ...func(o *Options)) (*Store, error) {
	gormLogger := gormlogger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(NormalizeDSN(dsn)), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	return New(db, optFns...)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddSession implements core.MemoryStore. Events already stored for the same
// session are ignored by the unique (session_id, event_id) index.
func (s *Store) AddSession(ctx context.Context, sess *core.Session) error {
	records := memory.RecordsFromSession(sess)
	if len(records) == 0 {
		return nil
	}

	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, s.opts.BatchSize).Error
	if err != nil {
		return fmt.Errorf("store memories of %s: %w", sess.Key, err)
	}

	s.opts.Logger.Debug("memory.sql.added", "session", sess.Key.String(), "records", len(rows))

	return nil
}

// Search implements core.MemoryStore.
func (s *Store) Search(ctx context.Context, appName, userID, query string, limit int) ([]core.SearchResult, error) {
	q := s.db.WithContext(ctx).
		Where("app_name = ? AND user_id = ?", appName, userID).
		Order("created_at DESC")

	if where, args := likeClause(memory.Tokenize(query)); where != "" {
		q = q.Where(where, args...)
	}

	if limit > 0 {
		q = q.Limit(limit * s.opts.CandidateFactor)
	}

	var rows []Row
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	records := make([]core.MemoryRecord, len(rows))
	for i, r := range rows {
		records[i] = fromRow(r)
	}

	return memory.Rank(records, query, limit), nil
}

// likeClause ORs one LIKE condition per token.
func likeClause(tokens []string) (string, []any) {
	if len(tokens) == 0 {
		return "", nil
	}

	conds := make([]string, len(tokens))
	args := make([]any, len(tokens))
	for i, t := range tokens {
		conds[i] = "LOWER(content) LIKE ?"
		args[i] = "%" + escapeLike(t) + "%"
	}

	return "(" + strings.Join(conds, " OR ") + ")", args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// NormalizeDSN adds parseTime and utf8mb4 parameters when absent.
func NormalizeDSN(dsn string) string {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

func toRow(r core.MemoryRecord) Row {
	return Row{
		ID:        r.ID,
		AppName:   r.AppName,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		EventID:   r.EventID,
		Author:    r.Author,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

func fromRow(r Row) core.MemoryRecord {
	return core.MemoryRecord{
		ID:        r.ID,
		AppName:   r.AppName,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		EventID:   r.EventID,
		Author:    r.Author,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}
