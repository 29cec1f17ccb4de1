package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DbType string

const (
	DbPostgres   DbType = "POSTGRESQL"
	DbSnowflake  DbType = "SNOWFLAKE"
	DbVertica    DbType = "VERTICA"
	DbMySQL      DbType = "MYSQL"
	DbSQLite     DbType = "SQLITE"
	DbLibSQL     DbType = "LIBSQL"
	DbClickHouse DbType = "CLICKHOUSE"
)

const (
	DefaultWarmupIterations = 1
	DefaultWarmupDuration   = 10
	DefaultResultsDir       = "results"
	DefaultEnvFile          = ".env"
	DefaultAllocatorLimitMB = 128
	DefaultBatchSize        = 1024
)

// Config mirrors config.yaml:
//
//	config:
//	  query: query.sql
//	  measurement_iterations: 5
//	locations:
//	  - name: eu
//	    databases:
//	      - name: pg
//	        db_type: POSTGRESQL
//	        url: postgres://localhost:5432/tiger
//	        user: tiger
//	        password: PG_PASSWORD
//	        measurement_duration: 10
type Config struct {
	Settings  GlobalSettings  `json:"config" yaml:"config"`
	Locations []LocationGroup `json:"locations" yaml:"locations"`
}

type GlobalSettings struct {
	Query                 string `json:"query" yaml:"query"`
	MeasurementIterations int    `json:"measurement_iterations" yaml:"measurement_iterations"`
	WarmupIterations      int    `json:"warmup_iterations,omitempty" yaml:"warmup_iterations,omitempty"`
	WarmupDuration        int    `json:"warmup_duration,omitempty" yaml:"warmup_duration,omitempty"`
	ResultsDir            string `json:"results_dir,omitempty" yaml:"results_dir,omitempty"`
	EnvFile               string `json:"env_file,omitempty" yaml:"env_file,omitempty"`
	AllocatorLimitMB      int64  `json:"allocator_limit_mb,omitempty" yaml:"allocator_limit_mb,omitempty"`
	BatchSize             int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

type LocationGroup struct {
	Name      string           `json:"name" yaml:"name"`
	Databases []DatabaseTarget `json:"databases" yaml:"databases"`
}

type DatabaseTarget struct {
	Name   string `json:"name" yaml:"name"`
	DbType DbType `json:"db_type" yaml:"db_type"`
	DbName string `json:"db_name,omitempty" yaml:"db_name,omitempty"`
	Host   string `json:"host,omitempty" yaml:"host,omitempty"`
	Port   string `json:"port,omitempty" yaml:"port,omitempty"`

	// Driver is the database/sql driver name, defaulted from DbType.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	URL    string `json:"url" yaml:"url"`
	// AdbcDriver is "flightsql", "snowflake" or a path to an ADBC shared library.
	AdbcDriver string `json:"adbc_driver,omitempty" yaml:"adbc_driver,omitempty"`
	AdbcURI    string `json:"adbc_uri,omitempty" yaml:"adbc_uri,omitempty"`

	User string `json:"user" yaml:"user"`
	// Password is a key in the credential store, never the secret itself.
	Password string `json:"password" yaml:"password"`

	BottomLimit           TierName `json:"bottom_limit,omitempty" yaml:"bottom_limit,omitempty"`
	TopLimit              TierName `json:"top_limit,omitempty" yaml:"top_limit,omitempty"`
	ConnectionTypes       []string `json:"connection_types,omitempty" yaml:"connection_types,omitempty"`
	MeasurementDuration   int      `json:"measurement_duration" yaml:"measurement_duration"`
	MeasurementIterations int      `json:"measurement_iterations,omitempty" yaml:"measurement_iterations,omitempty"`
}

var defaultSQLDrivers = map[DbType]string{
	DbPostgres:   "pgx",
	DbSnowflake:  "snowflake",
	DbVertica:    "vertica",
	DbMySQL:      "mysql",
	DbSQLite:     "sqlite",
	DbLibSQL:     "libsql",
	DbClickHouse: "clickhouse",
}

var defaultAdbcDrivers = map[DbType]string{
	DbPostgres:  "adbc_driver_postgresql",
	DbSnowflake: "snowflake",
	DbSQLite:    "adbc_driver_sqlite",
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigurationError("failed to read config file %v: %v", path, err)
	}
	config, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseConfig picks the decoder by file extension; unknown fields are ignored by both.
func ParseConfig(data []byte, path string) (*Config, error) {
	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, ConfigurationError("failed to parse JSON config %v: %v", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, ConfigurationError("failed to parse YAML config %v: %v", path, err)
		}
	}
	return &config, nil
}

func ApplyDefaults(config *Config) {
	s := &config.Settings
	if s.WarmupIterations == 0 {
		s.WarmupIterations = DefaultWarmupIterations
	}
	if s.WarmupDuration == 0 {
		s.WarmupDuration = DefaultWarmupDuration
	}
	if s.ResultsDir == "" {
		s.ResultsDir = DefaultResultsDir
	}
	if s.EnvFile == "" {
		s.EnvFile = DefaultEnvFile
	}
	if s.AllocatorLimitMB == 0 {
		s.AllocatorLimitMB = DefaultAllocatorLimitMB
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	for i := range config.Locations {
		for j := range config.Locations[i].Databases {
			target := &config.Locations[i].Databases[j]
			target.DbType = DbType(strings.ToUpper(string(target.DbType)))
			if target.Driver == "" {
				target.Driver = defaultSQLDrivers[target.DbType]
			}
			if target.AdbcDriver == "" {
				target.AdbcDriver = defaultAdbcDrivers[target.DbType]
			}
			if target.AdbcURI == "" {
				target.AdbcURI = target.URL
			}
		}
	}
}

// Validate checks what can be checked without the tier list; tier ranges and
// connection types are checked by BuildMatrix.
func (c *Config) Validate() error {
	s := c.Settings
	if s.Query == "" {
		return ConfigurationError("config.query must point to a query file")
	}
	if s.MeasurementIterations < 1 {
		return ConfigurationError("config.measurement_iterations must be at least 1, got %v", s.MeasurementIterations)
	}
	if s.WarmupIterations < 0 || s.WarmupDuration < 0 {
		return ConfigurationError("config warmup settings must not be negative")
	}
	if s.AllocatorLimitMB < 0 {
		return ConfigurationError("config.allocator_limit_mb must not be negative")
	}
	if s.BatchSize < 1 {
		return ConfigurationError("config.batch_size must be at least 1, got %v", s.BatchSize)
	}
	for _, location := range c.Locations {
		if location.Name == "" {
			return ConfigurationError("location without a name")
		}
		for _, target := range location.Databases {
			if err := target.Validate(); err != nil {
				return fmt.Errorf("location %v: %w", location.Name, err)
			}
		}
	}
	return nil
}

func (t *DatabaseTarget) Validate() error {
	if t.Name == "" {
		return ConfigurationError("database without a name")
	}
	if t.URL == "" {
		return ConfigurationError("database %v: url is required", t.Name)
	}
	if t.Driver == "" {
		return ConfigurationError("database %v: driver is required for db_type '%v'", t.Name, t.DbType)
	}
	if t.MeasurementDuration < 1 {
		return ConfigurationError("database %v: measurement_duration must be at least 1 second, got %v", t.Name, t.MeasurementDuration)
	}
	if t.MeasurementIterations < 0 {
		return ConfigurationError("database %v: measurement_iterations must not be negative", t.Name)
	}
	return nil
}

func (s GlobalSettings) AllocatorLimit() int64 { return s.AllocatorLimitMB * 1024 * 1024 }

func (s GlobalSettings) WarmupTime() time.Duration {
	return time.Duration(s.WarmupDuration) * time.Second
}
