package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shipscreen/smh-service/internal/config"
	"github.com/shipscreen/smh-service/internal/geo"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

// DefaultCacheTable таблица снимков SMH по умолчанию
const DefaultCacheTable = "smh_cache"

const createCacheTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		id              BIGINT AUTO_INCREMENT PRIMARY KEY,
		imo_number      INT NOT NULL,
		timestamp       DATETIME(6) NOT NULL,
		cached_days     DOUBLE NOT NULL DEFAULT 0,
		update_count    INT NOT NULL DEFAULT 0,
		options         JSON NOT NULL,
		port_visits     LONGBLOB,
		positions       LONGBLOB,
		ais_gaps        LONGBLOB,
		ihs_movements   LONGBLOB,
		eez_visits      LONGBLOB,
		non_port_stops  LONGBLOB,
		KEY idx_imo_id (imo_number, id)
	) ENGINE=InnoDB
`

// MySQLStore постоянное хранилище снимков SMH
type MySQLStore struct {
	db     *sql.DB
	table  string
	logger *utils.Logger
}

// NewMySQLStore открывает пул соединений MySQL
func NewMySQLStore(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	// DATETIME сканируется в time.Time только с parseTime
	dsnCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return NewMySQLStoreWithDB(db, cfg.CacheTable, logger)
}

// NewMySQLStoreWithDB создает хранилище поверх готового *sql.DB
func NewMySQLStoreWithDB(db *sql.DB, table string, logger *utils.Logger) (*MySQLStore, error) {
	if table == "" {
		table = DefaultCacheTable
	}
	if err := geo.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("cache table: %w", err)
	}
	return &MySQLStore{db: db, table: table, logger: logger}, nil
}

// Ping проверяет соединение с MySQL
func (s *MySQLStore) Ping(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		metrics.MySQLConnectionStatus.Set(0)
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	metrics.MySQLConnectionStatus.Set(1)
	return nil
}

// Close закрывает пул соединений
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema создает таблицу снимков, если ее нет
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createCacheTableSQL, s.table)); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// GetLatest загружает самый свежий снимок для IMO
func (s *MySQLStore) GetLatest(ctx context.Context, imo int) (*models.CacheEntry, error) {
	start := time.Now()
	defer func() {
		metrics.MySQLOperationDuration.WithLabelValues("get_latest").Observe(time.Since(start).Seconds())
	}()

	query := fmt.Sprintf(`
		SELECT id, imo_number, timestamp, cached_days, update_count, options,
		       port_visits, positions, ais_gaps, ihs_movements, eez_visits, non_port_stops
		FROM %s
		WHERE imo_number = ?
		ORDER BY id DESC
		LIMIT 1
	`, s.table)

	var (
		entry       = models.NewCacheEntry(imo)
		updateCount int
		options     []byte
		portVisits  []byte
		positions   []byte
		gaps        []byte
		movements   []byte
		eezVisits   []byte
		stops       []byte
	)

	err := s.db.QueryRowContext(ctx, query, imo).Scan(
		&entry.ID, &entry.IMO, &entry.Timestamp, &entry.CachedDays, &updateCount, &options,
		&portVisits, &positions, &gaps, &movements, &eezVisits, &stops,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.MySQLOperationErrors.WithLabelValues("get_latest").Inc()
		return nil, fmt.Errorf("failed to query smh cache for IMO %d: %w", imo, err)
	}

	columns := []struct {
		name string
		data []byte
		out  interface{}
	}{
		{"options", options, &entry.Options},
		{"port_visits", portVisits, &entry.PortVisits},
		{"positions", positions, &entry.Positions},
		{"ais_gaps", gaps, &entry.AISGaps},
		{"ihs_movements", movements, &entry.IHSMovements},
		{"eez_visits", eezVisits, &entry.EEZVisits},
		{"non_port_stops", stops, &entry.NonPortStops},
	}
	for _, c := range columns {
		if err := decodeColumn(c.name, c.data, c.out); err != nil {
			metrics.MySQLOperationErrors.WithLabelValues("get_latest").Inc()
			return nil, fmt.Errorf("smh cache row %d: %w", entry.ID, err)
		}
	}

	// колонка авторитетна для оптимистичной проверки
	entry.Options.UpdateCount = updateCount
	if entry.PortVisits == nil {
		entry.PortVisits = make(map[string][]models.PortVisit)
	}
	if entry.Positions == nil {
		entry.Positions = make(map[string][]models.Position)
	}

	s.logger.WithField("imo", imo).
		WithField("id", entry.ID).
		WithField("update_count", updateCount).
		Debug("Loaded smh cache entry from MySQL")

	return entry, nil
}

type encodedEntry struct {
	options    []byte
	portVisits []byte
	positions  []byte
	gaps       []byte
	movements  []byte
	eezVisits  []byte
	stops      []byte
}

func encodeEntry(entry *models.CacheEntry) (*encodedEntry, error) {
	zip := entry.Options.ZipData
	enc := &encodedEntry{}

	var err error
	if enc.options, err = encodeColumn("options", entry.Options, false); err != nil {
		return nil, err
	}
	// визиты читаются при каждом ответе, их не сжимаем
	if enc.portVisits, err = encodeColumn("port_visits", entry.PortVisits, false); err != nil {
		return nil, err
	}
	if enc.positions, err = encodeColumn("positions", entry.Positions, zip); err != nil {
		return nil, err
	}
	if enc.gaps, err = encodeColumn("ais_gaps", entry.AISGaps, zip); err != nil {
		return nil, err
	}
	if enc.movements, err = encodeColumn("ihs_movements", entry.IHSMovements, zip); err != nil {
		return nil, err
	}
	if enc.eezVisits, err = encodeColumn("eez_visits", entry.EEZVisits, false); err != nil {
		return nil, err
	}
	if enc.stops, err = encodeColumn("non_port_stops", entry.NonPortStops, false); err != nil {
		return nil, err
	}
	return enc, nil
}

// Save вставляет новый снимок или перезаписывает существующий
func (s *MySQLStore) Save(ctx context.Context, entry *models.CacheEntry, overwrite bool) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	enc, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	if overwrite && entry.Options.LastSMHID > 0 {
		return s.update(ctx, entry, enc)
	}
	return s.insert(ctx, entry, enc)
}

func (s *MySQLStore) insert(ctx context.Context, entry *models.CacheEntry, enc *encodedEntry) error {
	start := time.Now()
	defer func() {
		metrics.MySQLOperationDuration.WithLabelValues("insert").Observe(time.Since(start).Seconds())
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (imo_number, timestamp, cached_days, update_count, options,
		                port_visits, positions, ais_gaps, ihs_movements, eez_visits, non_port_stops)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table)

	res, err := s.db.ExecContext(ctx, query,
		entry.IMO, entry.Timestamp.UTC(), entry.CachedDays, entry.Options.UpdateCount, enc.options,
		enc.portVisits, enc.positions, enc.gaps, enc.movements, enc.eezVisits, enc.stops,
	)
	if err != nil {
		metrics.MySQLOperationErrors.WithLabelValues("insert").Inc()
		return fmt.Errorf("failed to insert smh cache for IMO %d: %w", entry.IMO, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}
	entry.ID = id

	s.logger.WithField("imo", entry.IMO).
		WithField("id", id).
		Info("Inserted smh cache entry")
	return nil
}

func (s *MySQLStore) update(ctx context.Context, entry *models.CacheEntry, enc *encodedEntry) error {
	start := time.Now()
	defer func() {
		metrics.MySQLOperationDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	}()

	// строка должна быть в том состоянии, в котором ее прочитали
	expected := entry.Options.UpdateCount - 1
	if expected < 0 {
		expected = 0
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET timestamp = ?, cached_days = ?, update_count = ?, options = ?,
		    port_visits = ?, positions = ?, ais_gaps = ?, ihs_movements = ?,
		    eez_visits = ?, non_port_stops = ?
		WHERE id = ? AND imo_number = ? AND update_count = ?
	`, s.table)

	res, err := s.db.ExecContext(ctx, query,
		entry.Timestamp.UTC(), entry.CachedDays, entry.Options.UpdateCount, enc.options,
		enc.portVisits, enc.positions, enc.gaps, enc.movements,
		enc.eezVisits, enc.stops,
		entry.Options.LastSMHID, entry.IMO, expected,
	)
	if err != nil {
		metrics.MySQLOperationErrors.WithLabelValues("update").Inc()
		return fmt.Errorf("failed to update smh cache row %d: %w", entry.Options.LastSMHID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		metrics.CacheConflicts.Inc()
		s.logger.WithField("imo", entry.IMO).
			WithField("id", entry.Options.LastSMHID).
			WithField("expected_update_count", expected).
			Warn("Smh cache row changed since it was read")
		return fmt.Errorf("row %d: %w", entry.Options.LastSMHID, ErrCacheConflict)
	}

	entry.ID = entry.Options.LastSMHID

	s.logger.WithField("imo", entry.IMO).
		WithField("id", entry.ID).
		WithField("update_count", entry.Options.UpdateCount).
		Info("Updated smh cache entry")
	return nil
}
