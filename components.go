package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

type ConnectionType string

const (
	ConnectionSQL      ConnectionType = "SQL"
	ConnectionSQLArrow ConnectionType = "SQL_ARROW"
	ConnectionADBC     ConnectionType = "ADBC"
)

// AllConnectionTypes is the sweep used when a target does not list its own.
var AllConnectionTypes = []ConnectionType{ConnectionSQL, ConnectionSQLArrow, ConnectionADBC}

var connectionAliases = map[string]ConnectionType{
	"SQL":        ConnectionSQL,
	"JDBC":       ConnectionSQL,
	"SQL_ARROW":  ConnectionSQLArrow,
	"JDBC_ARROW": ConnectionSQLArrow,
	"ADBC":       ConnectionADBC,
}

func ParseConnectionType(name string) (ConnectionType, error) {
	connectionType, ok := connectionAliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return "", ConfigurationError("unknown connection type '%v'", name)
	}
	return connectionType, nil
}

// Connector executes one query over resources it does not own and drains
// every row or batch into the sink before returning.
type Connector interface {
	Type() ConnectionType
	Execute(ctx context.Context, query string, sink *Sink) error
}

// RecordStream is the part of array.RecordReader the drain loops need.
type RecordStream interface {
	Next() bool
	Record() arrow.Record
	Err() error
	Release()
}

type ColumnarDatabase interface {
	Connect(ctx context.Context) (ColumnarConnection, error)
	Close() error
}

type ColumnarConnection interface {
	NewStatement() (ColumnarStatement, error)
	Close() error
}

type ColumnarStatement interface {
	SetSqlQuery(query string) error
	ExecuteQuery(ctx context.Context) (RecordStream, error)
	Close() error
}

// Sink counts everything a connector reads so the reads have an observable effect.
type Sink struct {
	Rows    int64
	Values  int64
	Batches int64
	Bytes   int64
}

func (s *Sink) ConsumeRow(values ...any) {
	s.Rows++
	for _, value := range values {
		s.Values++
		s.Bytes += valueSize(value)
	}
}

func (s *Sink) ConsumeRecord(record arrow.Record) {
	s.Batches++
	s.Rows += record.NumRows()
	for _, column := range record.Columns() {
		s.Values += int64(column.Len())
		for _, buffer := range column.Data().Buffers() {
			if buffer != nil {
				s.Bytes += int64(buffer.Len())
			}
		}
	}
}

func (s *Sink) Reset() { *s = Sink{} }

func (s Sink) String() string {
	return fmt.Sprintf("rows=%v values=%v batches=%v bytes=%v", s.Rows, s.Values, s.Batches, s.Bytes)
}

func valueSize(value any) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case interface{ Len() int }:
		return int64(v.Len())
	}
	return 8
}
