package sproc

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConnection is the conventional name of the connection entry used
// when no explicit name is configured.
const DefaultConnection = "DefaultConnection"

var validate = validator.New()

// Source is a read-only lookup of named connection strings. A missing or
// malformed entry surfaces when the connection is first acquired, not when
// the executor is constructed.
type Source interface {
	// ConnectionString returns the DSN for the named connection entry.
	ConnectionString(name string) (string, error)
}

// Connection is one named entry in a connections file.
type Connection struct {
	Driver string `yaml:"driver" validate:"required"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// FileSource is a Source backed by a YAML connections file:
//
//	connections:
//	  DefaultConnection:
//	    driver: postgres
//	    dsn: postgres://app@db:5432/app?sslmode=disable
//	  Reporting:
//	    driver: mysql
//	    dsn: reports:secret@tcp(reports-db:3306)/reports
type FileSource struct {
	settings fileSettings
}

type fileSettings struct {
	Connections map[string]Connection `yaml:"connections" validate:"required,min=1,dive"`
}

// LoadFile reads and validates a YAML connections file.
func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sproc: read connections file: %w", err)
	}
	return ParseConnections(raw)
}

// ParseConnections parses and validates YAML connections data.
func ParseConnections(raw []byte) (*FileSource, error) {
	var s fileSettings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("sproc: parse connections file: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("sproc: invalid connections file: %w", err)
	}
	return &FileSource{settings: s}, nil
}

// ConnectionString implements Source.
func (f *FileSource) ConnectionString(name string) (string, error) {
	c, ok := f.settings.Connections[name]
	if !ok {
		return "", fmt.Errorf("sproc: connection entry %q not found", name)
	}
	return c.DSN, nil
}

// Driver returns the driver name configured for the named entry.
func (f *FileSource) Driver(name string) (string, error) {
	c, ok := f.settings.Connections[name]
	if !ok {
		return "", fmt.Errorf("sproc: connection entry %q not found", name)
	}
	return c.Driver, nil
}

// EnvSource resolves connection strings from process environment variables.
// The entry name is upper-cased with the prefix prepended;
// "DefaultConnection" with prefix "SPROC_" reads SPROC_DEFAULTCONNECTION.
type EnvSource struct {
	Prefix string
}

// ConnectionString implements Source.
func (e EnvSource) ConnectionString(name string) (string, error) {
	key := e.Prefix + strings.ToUpper(name)
	dsn, ok := os.LookupEnv(key)
	if !ok || dsn == "" {
		return "", fmt.Errorf("sproc: environment variable %s not set", key)
	}
	return dsn, nil
}

// StaticSource is a Source over a fixed in-memory map, handy for tests and
// one-off wiring.
type StaticSource map[string]string

// ConnectionString implements Source.
func (s StaticSource) ConnectionString(name string) (string, error) {
	dsn, ok := s[name]
	if !ok {
		return "", fmt.Errorf("sproc: connection entry %q not found", name)
	}
	return dsn, nil
}
