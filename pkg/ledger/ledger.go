package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	errs "fansync/pkg/errors"
	"fansync/pkg/logger"
	"fansync/pkg/models"
)

// FileName is the ledger file kept inside each user's download directory
const FileName = ".media.db"

const schema = `CREATE TABLE IF NOT EXISTS media (
	source_type TEXT NOT NULL,
	collection  TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	source_id   INTEGER NOT NULL,
	media_id    INTEGER NOT NULL,
	PRIMARY KEY (source_type, source_id, media_id)
) WITHOUT ROWID`

const timestampIndex = `CREATE INDEX IF NOT EXISTS media_timestamp ON media (timestamp)`

// Entry is one durable ledger row
type Entry struct {
	bun.BaseModel `bun:"table:media"`

	SourceType string            `bun:"source_type,pk"`
	Collection models.Collection `bun:"collection,notnull"`
	Timestamp  int64             `bun:"timestamp,notnull"`
	SourceID   int64             `bun:"source_id,pk"`
	MediaID    int64             `bun:"media_id,pk"`
}

// EntryFor builds the row recorded once item is on disk
func EntryFor(item models.MediaItem) Entry {
	return Entry{
		SourceType: string(item.SourceType),
		Collection: item.Collection,
		Timestamp:  item.Timestamp(),
		SourceID:   item.SourceRecordID,
		MediaID:    item.MediaID,
	}
}

// AssetEntry builds the row for a singleton asset (avatar or header)
// identified by its last-modified timestamp.
func AssetEntry(collection models.Collection, ts int64) Entry {
	return Entry{
		SourceType: string(collection),
		Collection: collection,
		Timestamp:  ts,
		SourceID:   ts,
		MediaID:    ts,
	}
}

// Options tunes the underlying SQLite connection
type Options struct {
	BusyTimeout time.Duration
	MaxRetries  int
	Logger      logger.Logger
}

func (o *Options) withDefaults() Options {
	out := Options{BusyTimeout: 5 * time.Second, MaxRetries: 5}
	if o != nil {
		if o.BusyTimeout > 0 {
			out.BusyTimeout = o.BusyTimeout
		}
		if o.MaxRetries > 0 {
			out.MaxRetries = o.MaxRetries
		}
		out.Logger = o.Logger
	}
	if out.Logger == nil {
		out.Logger = logger.NewNopLogger()
	}
	return out
}

// Ledger is the sync state of one remote user. The database is opened
// lazily: reads against a missing file report an empty ledger without
// creating it. All operations are serialized.
type Ledger struct {
	path string
	opts Options

	mu sync.Mutex
	db *bun.DB
}

// Open returns a ledger stored at path. Nothing touches the disk until the
// first operation.
func Open(path string, opts *Options) *Ledger {
	return &Ledger{path: path, opts: opts.withDefaults()}
}

// Path returns the database file location
func (l *Ledger) Path() string {
	return l.path
}

// HighWaterMark returns the newest recorded timestamp for collection, or 0
// when nothing was recorded. A read failure also yields 0 together with a
// ledger error the caller may log.
func (l *Ledger) HighWaterMark(ctx context.Context, collection models.Collection) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := l.conn(ctx, false)
	if err != nil {
		return 0, errs.NewLedger("high water mark for "+string(collection), err)
	}
	if db == nil {
		return 0, nil
	}

	var ts int64
	err = db.NewSelect().
		Model((*Entry)(nil)).
		ColumnExpr("COALESCE(MAX(timestamp), 0)").
		Where("collection = ?", collection).
		Scan(ctx, &ts)
	if err != nil {
		return 0, errs.NewLedger("high water mark for "+string(collection), errors.WithStack(err))
	}
	return ts, nil
}

// Record inserts e. It reports false without error when the identity key
// is already present.
func (l *Ledger) Record(ctx context.Context, e Entry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := l.conn(ctx, true)
	if err != nil {
		return false, errs.NewLedger("record", err)
	}

	res, err := db.NewInsert().
		Model(&e).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errs.NewLedger("record", errors.WithStack(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.NewLedger("record", errors.WithStack(err))
	}
	return n == 1, nil
}

// Has reports whether the identity key was recorded
func (l *Ledger) Has(ctx context.Context, key models.Key) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := l.conn(ctx, false)
	if err != nil {
		return false, errs.NewLedger("lookup", err)
	}
	if db == nil {
		return false, nil
	}

	exists, err := db.NewSelect().
		Model((*Entry)(nil)).
		Where("source_type = ?", string(key.SourceType)).
		Where("source_id = ?", key.SourceRecordID).
		Where("media_id = ?", key.MediaID).
		Exists(ctx)
	if err != nil {
		return false, errs.NewLedger("lookup", errors.WithStack(err))
	}
	return exists, nil
}

// Latest returns the newest row of collection. ok is false when there is
// none.
func (l *Ledger) Latest(ctx context.Context, collection models.Collection) (entry Entry, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := l.conn(ctx, false)
	if err != nil {
		return Entry{}, false, errs.NewLedger("latest "+string(collection), err)
	}
	if db == nil {
		return Entry{}, false, nil
	}

	err = db.NewSelect().
		Model(&entry).
		Where("collection = ?", collection).
		Order("timestamp DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errs.NewLedger("latest "+string(collection), errors.WithStack(err))
	}
	return entry, true, nil
}

// Count returns the number of recorded rows
func (l *Ledger) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db, err := l.conn(ctx, false)
	if err != nil {
		return 0, errs.NewLedger("count", err)
	}
	if db == nil {
		return 0, nil
	}

	n, err := db.NewSelect().Model((*Entry)(nil)).Count(ctx)
	if err != nil {
		return 0, errs.NewLedger("count", errors.WithStack(err))
	}
	return n, nil
}

// Close releases the database handle. The ledger reopens on next use.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return errors.WithStack(err)
}

// conn returns the open database. When create is false and the file does
// not exist it returns nil, nil. Callers hold l.mu.
func (l *Ledger) conn(ctx context.Context, create bool) (*bun.DB, error) {
	if l.db != nil {
		return l.db, nil
	}

	if _, err := os.Stat(l.path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WithStack(err)
		}
		if !create {
			return nil, nil
		}
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create ledger directory")
		}
	}

	db, err := openDB(ctx, l.path, l.opts)
	if err != nil {
		return nil, err
	}
	l.db = db
	return db, nil
}

func openDB(ctx context.Context, path string, opts Options) (*bun.DB, error) {
	drv := sqliteshim.Driver()
	var connector driver.Connector = &driverConnector{driver: drv, dsn: path}
	if opener, ok := drv.(driver.DriverContext); ok {
		c, err := opener.OpenConnector(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		connector = c
	}

	sqldb := sql.OpenDB(newRetryConnector(connector, opts.MaxRetries))
	// One connection per user file; concurrent users each get their own.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.AddQueryHook(&queryHook{log: opts.Logger.WithField("ledger", path)})

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=" + strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10),
	}
	for _, stmt := range append(pragmas, schema, timestampIndex) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to initialize ledger %s", path)
		}
	}
	return db, nil
}

// queryHook logs every statement at debug level
type queryHook struct {
	log logger.Logger
}

func (*queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	fields := map[string]interface{}{
		"query":    event.Query,
		"duration": time.Since(event.StartTime),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		fields["error"] = event.Err.Error()
	}
	h.log.DebugWithFields("ledger query", fields)
}
