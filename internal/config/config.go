// Package config holds the yaml-tagged, per-process configuration
// structs for the cluster (spec.md §6 "Environment/config"), mirroring
// the split and load pattern of the teacher's own internal/config
// package (LoginServer/GameServer, DatabaseConfig.DSN()).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseBackend selects which persistence strategy the Database
// Server binds (spec.md §6 "database-backend in {raw, packed, sql}").
type DatabaseBackend string

const (
	DatabaseBackendRaw    DatabaseBackend = "raw"
	DatabaseBackendPacked DatabaseBackend = "packed"
	DatabaseBackendSQL    DatabaseBackend = "sql"
)

// DatabaseConfig holds the options named in spec.md §6's
// Environment/config table. File-backed backends use Directory,
// Extension and Storage; the SQL backend uses the MySQL* fields.
type DatabaseConfig struct {
	Backend DatabaseBackend `yaml:"database-backend"`

	// File-backed (raw, packed)
	Directory string `yaml:"database-directory"`
	Extension string `yaml:"database-extension"`
	Storage   string `yaml:"database-storage"`

	// SQL
	MySQLHost   string `yaml:"mysql-host"`
	MySQLPort   int    `yaml:"mysql-port"`
	MySQLUser   string `yaml:"mysql-user"`
	MySQLPasswd string `yaml:"mysql-passwd"`

	// Language selects a NameMaster file and, for SQL, a
	// language-prefixed database (spec.md §6).
	Language string `yaml:"language"`
}

// DSN returns the Postgres connection string for the SQL backend, the
// teacher's DatabaseConfig.DSN() generalized to spec.md's mysql-*
// option names and language-prefixed database convention.
func (d DatabaseConfig) DSN() string {
	dbName := d.Language
	if dbName == "" {
		dbName = "otp"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s_otp?sslmode=disable",
		d.MySQLUser, d.MySQLPasswd, d.MySQLHost, d.MySQLPort, dbName,
	)
}

// MessageDirector configures the pub/sub bus process.
type MessageDirector struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
}

// StateServer configures the authoritative object-registry process.
type StateServer struct {
	LogLevel string `yaml:"log_level"`
}

// ClientAgent configures the per-client protocol front door (spec.md
// §6 "Listen endpoints": "CA TCP on 6667").
type ClientAgent struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	AvatarClass string `yaml:"avatar_class"`
	LogLevel    string `yaml:"log_level"`
}

// DatabaseServer configures the persistent CRUD + ID allocation
// process.
type DatabaseServer struct {
	Database DatabaseConfig `yaml:"database"`
	LogLevel string         `yaml:"log_level"`
}

// EventLog configures the operational event-log sink (spec.md §6
// "Listen endpoints": "event-log UDP on 4343").
type EventLog struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// Cluster is the top-level config file shape: one process binary reads
// the whole file and uses the section it needs.
type Cluster struct {
	MessageDirector MessageDirector `yaml:"message_director"`
	StateServer     StateServer     `yaml:"state_server"`
	ClientAgent     ClientAgent     `yaml:"client_agent"`
	DatabaseServer  DatabaseServer  `yaml:"database_server"`
	EventLog        EventLog        `yaml:"event_log"`
}

// Default returns a Cluster config with the spec's default listen
// endpoints and a file-backed database.
func Default() Cluster {
	return Cluster{
		MessageDirector: MessageDirector{
			BindAddress: "0.0.0.0",
			Port:        7100,
			LogLevel:    "info",
		},
		StateServer: StateServer{
			LogLevel: "info",
		},
		ClientAgent: ClientAgent{
			BindAddress: "0.0.0.0",
			Port:        6667,
			AvatarClass: "DistributedToon",
			LogLevel:    "info",
		},
		DatabaseServer: DatabaseServer{
			Database: DatabaseConfig{
				Backend:   DatabaseBackendRaw,
				Directory: "db",
				Extension: ".dbo",
				Storage:   "db/accounts",
			},
			LogLevel: "info",
		},
		EventLog: EventLog{
			BindAddress: "0.0.0.0",
			Port:        4343,
		},
	}
}

// Load reads a YAML cluster config from path, falling back to Default
// when the file doesn't exist (teacher's LoadLoginServer/LoadGameServer
// pattern).
func Load(path string) (Cluster, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
