package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// EventStreamsTable is the name of the stream registry table
	EventStreamsTable string

	// CheckpointsTable is the name of the projection checkpoints table
	CheckpointsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:      "migrations",
		OutputFilename:    fmt.Sprintf("%s_init_event_streams.sql", timestamp),
		EventStreamsTable: "event_streams",
		CheckpointsTable:  "projection_checkpoints",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return write(config, PostgresSQL(config))
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return write(config, SQLiteSQL(config))
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return write(config, MySQLSQL(config))
}

// Generate writes the migration for the named adapter.
func Generate(adapter string, config *Config) error {
	switch adapter {
	case "postgres":
		return GeneratePostgres(config)
	case "sqlite":
		return GenerateSQLite(config)
	case "mysql":
		return GenerateMySQL(config)
	}
	return fmt.Errorf("unsupported adapter %q (supported: postgres, sqlite, mysql)", adapter)
}

func write(config *Config, sql string) error {
	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// PostgresSQL renders the PostgreSQL migration.
func PostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Streams Migration
-- Generated: %s

-- Registry of streams. Each stream's events live in their own table named
-- "_" + sha1(real_stream_name), which the store creates on demand.
CREATE TABLE IF NOT EXISTS %s (
    no BIGSERIAL PRIMARY KEY,
    real_stream_name VARCHAR(150) NOT NULL,
    stream_name CHAR(41) NOT NULL,
    metadata JSONB,
    category VARCHAR(150),
    UNIQUE (real_stream_name)
);

-- Category listings group and sort on category
CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category);

-- Projection checkpoints track the last stream position handled per projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name TEXT PRIMARY KEY,
    last_position BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`,
		time.Now().Format(time.RFC3339),
		config.EventStreamsTable,
		config.EventStreamsTable, config.EventStreamsTable,
		config.CheckpointsTable,
	)
}

// SQLiteSQL renders the SQLite migration.
func SQLiteSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Streams Migration
-- Generated: %s

-- Registry of streams. Each stream's events live in their own table named
-- "_" + sha1(real_stream_name), which the store creates on demand.
CREATE TABLE IF NOT EXISTS %s (
    no INTEGER PRIMARY KEY AUTOINCREMENT,
    real_stream_name VARCHAR(150) NOT NULL UNIQUE,
    stream_name CHAR(41) NOT NULL,
    metadata JSON,
    category VARCHAR(150)
);

-- Category listings group and sort on category
CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category);

-- Projection checkpoints track the last stream position handled per projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name TEXT PRIMARY KEY,
    last_position INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`,
		time.Now().Format(time.RFC3339),
		config.EventStreamsTable,
		config.EventStreamsTable, config.EventStreamsTable,
		config.CheckpointsTable,
	)
}

// MySQLSQL renders the MySQL/MariaDB migration.
func MySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Streams Migration
-- Generated: %s

-- Registry of streams. Each stream's events live in their own table named
-- "_" + sha1(real_stream_name), which the store creates on demand.
CREATE TABLE IF NOT EXISTS %s (
    no BIGINT NOT NULL AUTO_INCREMENT,
    real_stream_name VARCHAR(150) NOT NULL,
    stream_name CHAR(41) NOT NULL,
    metadata JSON,
    category VARCHAR(150),
    PRIMARY KEY (no),
    UNIQUE KEY ix_rsn (real_stream_name),
    KEY ix_cat (category)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;

-- Projection checkpoints track the last stream position handled per projection
CREATE TABLE IF NOT EXISTS %s (
    projection_name VARCHAR(150) NOT NULL,
    last_position BIGINT NOT NULL DEFAULT 0,
    updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    PRIMARY KEY (projection_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`,
		time.Now().Format(time.RFC3339),
		config.EventStreamsTable,
		config.CheckpointsTable,
	)
}
