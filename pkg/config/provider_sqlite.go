package config

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/chrissnell/ecogmark/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultConfigID = `(SELECT id FROM configs WHERE name = 'default')`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens (and if needed initialises) a configuration database
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// In-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO configs (name) VALUES ('default')`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create default configuration: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	cfg := &ConfigData{}

	annotator, err := s.GetAnnotator()
	if err != nil {
		return nil, fmt.Errorf("failed to load annotator config: %w", err)
	}
	cfg.Annotator = *annotator

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	cfg.Storage = *storage

	controllers, err := s.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}
	cfg.Controllers = controllers

	return finish(cfg)
}

// GetAnnotator returns the annotator configuration
func (s *SQLiteProvider) GetAnnotator() (*AnnotatorData, error) {
	query := `
		SELECT sampling_rate, channels, classifier_endpoint,
		       classifier_window_seconds, classifier_timeout
		FROM annotator_configs
		WHERE config_id = ` + defaultConfigID

	var annotator AnnotatorData
	var channels, endpoint, timeout sql.NullString
	var window sql.NullFloat64

	err := s.db.QueryRow(query).Scan(&annotator.SamplingRate, &channels, &endpoint, &window, &timeout)
	if err == sql.ErrNoRows {
		return &annotator, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query annotator config: %w", err)
	}

	if channels.Valid && channels.String != "" {
		for _, c := range strings.Split(channels.String, ",") {
			annotator.Channels = append(annotator.Channels, strings.TrimSpace(c))
		}
	}
	if endpoint.Valid && endpoint.String != "" {
		annotator.Classifier = &ClassifierData{
			Endpoint:      endpoint.String,
			WindowSeconds: window.Float64,
			Timeout:       timeout.String,
		}
	}
	return &annotator, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, connection_string
		FROM storage_configs
		WHERE config_id = ` + defaultConfigID + `
		ORDER BY id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backend string
		var conn sql.NullString
		if err := rows.Scan(&backend, &conn); err != nil {
			return nil, fmt.Errorf("failed to scan storage row: %w", err)
		}

		switch backend {
		case "timescaledb":
			storage.TimescaleDB = &TimescaleDBData{ConnectionString: conn.String}
		case "sqlite":
			storage.SQLite = &SQLiteData{Path: conn.String}
		default:
			return nil, fmt.Errorf("unknown storage backend %q", backend)
		}
	}
	return storage, rows.Err()
}

// GetControllers returns controller configurations from the database
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	query := `
		SELECT controller_type, listen_addr, port, cert, key, static_dir, max_upload_mb
		FROM controller_configs
		WHERE config_id = ` + defaultConfigID + `
		ORDER BY id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query controllers: %w", err)
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var ctrl ControllerData
		var listenAddr, cert, key, staticDir sql.NullString
		var port, maxUpload sql.NullInt64

		if err := rows.Scan(&ctrl.Type, &listenAddr, &port, &cert, &key, &staticDir, &maxUpload); err != nil {
			return nil, fmt.Errorf("failed to scan controller row: %w", err)
		}

		if ctrl.Type == "rest" {
			ctrl.RESTServer = &RESTServerData{
				ListenAddr:  listenAddr.String,
				Port:        int(port.Int64),
				Cert:        cert.String,
				Key:         key.String,
				StaticDir:   staticDir.String,
				MaxUploadMB: int(maxUpload.Int64),
			}
		}
		controllers = append(controllers, ctrl)
	}
	return controllers, rows.Err()
}

// SaveConfig replaces the default configuration with cfg
func (s *SQLiteProvider) SaveConfig(cfg *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"annotator_configs", "storage_configs", "controller_configs"} {
		if _, err := tx.Exec(`DELETE FROM ` + table + ` WHERE config_id = ` + defaultConfigID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	a := cfg.Annotator
	var endpoint, timeout string
	var window float64
	if a.Classifier != nil {
		endpoint, window, timeout = a.Classifier.Endpoint, a.Classifier.WindowSeconds, a.Classifier.Timeout
	}
	_, err = tx.Exec(`
		INSERT INTO annotator_configs
			(config_id, sampling_rate, channels, classifier_endpoint, classifier_window_seconds, classifier_timeout)
		VALUES (`+defaultConfigID+`, ?, ?, ?, ?, ?)`,
		a.SamplingRate, strings.Join(a.Channels, ","), endpoint, window, timeout)
	if err != nil {
		return fmt.Errorf("failed to save annotator config: %w", err)
	}

	insertStorage := `INSERT INTO storage_configs (config_id, backend_type, connection_string) VALUES (` + defaultConfigID + `, ?, ?)`
	if cfg.Storage.TimescaleDB != nil {
		if _, err := tx.Exec(insertStorage, "timescaledb", cfg.Storage.TimescaleDB.ConnectionString); err != nil {
			return fmt.Errorf("failed to save timescaledb config: %w", err)
		}
	}
	if cfg.Storage.SQLite != nil {
		if _, err := tx.Exec(insertStorage, "sqlite", cfg.Storage.SQLite.Path); err != nil {
			return fmt.Errorf("failed to save sqlite config: %w", err)
		}
	}

	for _, ctrl := range cfg.Controllers {
		rs := ctrl.RESTServer
		if rs == nil {
			rs = &RESTServerData{}
		}
		_, err := tx.Exec(`
			INSERT INTO controller_configs
				(config_id, controller_type, listen_addr, port, cert, key, static_dir, max_upload_mb)
			VALUES (`+defaultConfigID+`, ?, ?, ?, ?, ?, ?, ?)`,
			ctrl.Type, rs.ListenAddr, rs.Port, rs.Cert, rs.Key, rs.StaticDir, rs.MaxUploadMB)
		if err != nil {
			return fmt.Errorf("failed to save controller config: %w", err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false since SQLite supports writes
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

func migrateSchema(db *sql.DB) error {
	ms, err := migrate.Load(migrations, "migrations")
	if err != nil {
		return err
	}
	if err := migrate.NewMigrator(db, ms, "config_schema_migrations").MigrateUp(); err != nil {
		return fmt.Errorf("failed to migrate configuration schema: %w", err)
	}
	return nil
}
