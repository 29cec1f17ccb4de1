package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
config:
  query: query.sql
  measurement_iterations: 3
  some_future_setting: true
locations:
  - name: eu
    databases:
      - name: pg
        db_type: postgresql
        url: postgres://localhost:5432/bench
        user: bench
        password: PG_PASSWORD
        bottom_limit: 10000
        top_limit: "1000000"
        connection_types: [JDBC, ADBC]
        measurement_duration: 15
        unknown_field: ignored
      - name: lite
        db_type: SQLITE
        url: file:bench.db
        measurement_duration: 1
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	config, err := LoadConfig(writeFile(t, "config.yaml", sampleConfig))
	require.Nil(t, err)

	s := config.Settings
	require.Equal(t, "query.sql", s.Query)
	require.Equal(t, 3, s.MeasurementIterations)
	require.Equal(t, DefaultWarmupIterations, s.WarmupIterations)
	require.Equal(t, DefaultWarmupDuration, s.WarmupDuration)
	require.Equal(t, DefaultResultsDir, s.ResultsDir)
	require.Equal(t, DefaultEnvFile, s.EnvFile)
	require.Equal(t, int64(128*1024*1024), s.AllocatorLimit())
	require.Equal(t, DefaultBatchSize, s.BatchSize)

	require.Len(t, config.Locations, 1)
	pg := config.Locations[0].Databases[0]
	require.Equal(t, DbPostgres, pg.DbType)
	require.Equal(t, "pgx", pg.Driver)
	require.Equal(t, "adbc_driver_postgresql", pg.AdbcDriver)
	require.Equal(t, pg.URL, pg.AdbcURI)
	require.Equal(t, TierName("10000"), pg.BottomLimit)
	require.Equal(t, TierName("1000000"), pg.TopLimit)
	require.Equal(t, []string{"JDBC", "ADBC"}, pg.ConnectionTypes)
	require.Equal(t, 15, pg.MeasurementDuration)

	lite := config.Locations[0].Databases[1]
	require.Equal(t, "sqlite", lite.Driver)
	require.Equal(t, "", lite.Password)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"config": {"query": "q.sql", "measurement_iterations": 1, "batch_size": 10},
		"locations": [{"name": "us", "databases": [
			{"name": "ch", "db_type": "CLICKHOUSE", "url": "clickhouse://localhost:9000/default",
			 "password": "CH", "bottom_limit": 1000, "measurement_duration": 5}
		]}]
	}`)
	config, err := LoadConfig(path)
	require.Nil(t, err)
	require.Equal(t, 10, config.Settings.BatchSize)
	target := config.Locations[0].Databases[0]
	require.Equal(t, "clickhouse", target.Driver)
	require.Equal(t, "", target.AdbcDriver)
	require.Equal(t, TierName("1000"), target.BottomLimit)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errors.Is(err, ErrConfiguration))

	_, err = LoadConfig(writeFile(t, "broken.yaml", "config: [oops"))
	require.True(t, errors.Is(err, ErrConfiguration))

	_, err = LoadConfig(writeFile(t, "noquery.yaml", "config:\n  measurement_iterations: 1\n"))
	require.True(t, errors.Is(err, ErrConfiguration))

	_, err = LoadConfig(writeFile(t, "iterations.yaml", "config:\n  query: q.sql\n  measurement_iterations: 0\n"))
	require.True(t, errors.Is(err, ErrConfiguration))

	_, err = LoadConfig(writeFile(t, "duration.yaml", `
config:
  query: q.sql
  measurement_iterations: 1
locations:
  - name: eu
    databases:
      - name: pg
        db_type: POSTGRESQL
        url: postgres://localhost/bench
`))
	require.True(t, errors.Is(err, ErrConfiguration))
	require.Contains(t, err.Error(), "measurement_duration")

	_, err = LoadConfig(writeFile(t, "driver.yaml", `
config:
  query: q.sql
  measurement_iterations: 1
locations:
  - name: eu
    databases:
      - name: odd
        db_type: ORACLE
        url: oracle://localhost/bench
        measurement_duration: 1
`))
	require.True(t, errors.Is(err, ErrConfiguration))
	require.Contains(t, err.Error(), "driver is required")
}

func TestParseConnectionType(t *testing.T) {
	for name, expected := range map[string]ConnectionType{
		"SQL":        ConnectionSQL,
		"jdbc":       ConnectionSQL,
		"sql_arrow":  ConnectionSQLArrow,
		"JDBC_ARROW": ConnectionSQLArrow,
		" adbc ":     ConnectionADBC,
	} {
		actual, err := ParseConnectionType(name)
		require.Nil(t, err)
		require.Equal(t, expected, actual, name)
	}
	_, err := ParseConnectionType("ODBC")
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := ExecutionError(cause, "query %v failed", 1)
	require.True(t, errors.Is(err, ErrExecution))
	require.False(t, errors.Is(err, ErrConnection))
	require.True(t, errors.Is(err, cause))
	require.Equal(t, "[EXECUTION] query 1 failed: boom", err.Error())

	require.Equal(t, "[CREDENTIAL_NOT_FOUND] password 'k' not found in .env", CredentialNotFoundError("k", ".env").Error())

	kept := asExecutionError(ConnectionError(cause, "down"), "ignored")
	require.True(t, errors.Is(kept, ErrConnection))
	wrapped := asExecutionError(cause, "wrapped")
	require.True(t, errors.Is(wrapped, ErrExecution))
	require.Nil(t, asExecutionError(nil, "nothing"))
}
