// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pingcap-incubator/tinymeta/server/catalog"
	"github.com/pingcap-incubator/tinymeta/server/id"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the tinymeta server configuration.
type Config struct {
	*flag.FlagSet `json:"-"`

	Version bool `json:"-"`

	ConfigCheck bool `json:"-"`

	Name    string `toml:"name" json:"name"`
	DataDir string `toml:"data-dir" json:"data-dir"`

	// Tenant scopes every catalog and user key in the metastore.
	Tenant string `toml:"tenant" json:"tenant"`

	// Backend selects the metastore: "etcd", "leveldb" or "memory".
	Backend string `toml:"backend" json:"backend"`

	// MetaEndpoints is the comma separated etcd client urls of the
	// metastore cluster, used by the etcd backend.
	MetaEndpoints string `toml:"meta-endpoints" json:"meta-endpoints"`

	// RootPath prefixes every key this server writes into the metastore.
	RootPath string `toml:"root-path" json:"root-path"`

	// The system tier owns [sys-id-begin, sys-id-end) and the user tier
	// allocates from [user-id-begin, user-id-end). The two ranges must be
	// disjoint; this is validated at startup and never renegotiated at
	// runtime.
	SysIDBegin  uint64 `toml:"sys-id-begin" json:"sys-id-begin"`
	SysIDEnd    uint64 `toml:"sys-id-end" json:"sys-id-end"`
	UserIDBegin uint64 `toml:"user-id-begin" json:"user-id-begin"`
	UserIDEnd   uint64 `toml:"user-id-end" json:"user-id-end"`

	// Log related config.
	Log log.Config `toml:"log" json:"log"`

	configFile string

	// For all warnings during parsing.
	WarningMsgs []string

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// NewConfig creates a new config.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.FlagSet = flag.NewFlagSet("tinymeta", flag.ContinueOnError)
	fs := cfg.FlagSet

	fs.BoolVar(&cfg.Version, "V", false, "print version information and exit")
	fs.BoolVar(&cfg.Version, "version", false, "print version information and exit")
	fs.StringVar(&cfg.configFile, "config", "", "Config file")
	fs.BoolVar(&cfg.ConfigCheck, "config-check", false, "check config file validity and exit")

	fs.StringVar(&cfg.Name, "name", "", "human-readable name for this tinymeta server")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "path to the data directory (default 'default.${name}')")
	fs.StringVar(&cfg.Tenant, "tenant", "", "tenant the catalog and user keys are scoped to")
	fs.StringVar(&cfg.Backend, "backend", "", "metastore backend: etcd, leveldb or memory")
	fs.StringVar(&cfg.MetaEndpoints, "meta-endpoints", "", "comma separated etcd urls of the metastore cluster")
	fs.StringVar(&cfg.RootPath, "root-path", "", "key prefix in the metastore")

	fs.StringVar(&cfg.Log.Level, "L", "", "log level: debug, info, warn, error, fatal (default 'info')")
	fs.StringVar(&cfg.Log.File.Filename, "log-file", "", "log file path")

	return cfg
}

const (
	defaultName          = "tinymeta"
	defaultTenant        = "default"
	defaultBackend       = "etcd"
	defaultMetaEndpoints = "http://127.0.0.1:2379"
	defaultRootPath      = "/tinymeta"
)

// Backend names.
const (
	BackendEtcd    = "etcd"
	BackendLeveldb = "leveldb"
	BackendMemory  = "memory"
)

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustUint64(v *uint64, defValue uint64) {
	if *v == 0 {
		*v = defValue
	}
}

// Parse parses flag definitions from the argument list.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	// Load config file if specified.
	var meta *toml.MetaData
	if c.configFile != "" {
		meta, err = c.configFromFile(c.configFile)
		if err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(c.FlagSet.Args()) != 0 {
		return errors.Errorf("'%s' is an invalid flag", c.FlagSet.Arg(0))
	}

	return c.Adjust(meta)
}

// Adjust fills in defaults and validates the configuration.
func (c *Config) Adjust(meta *toml.MetaData) error {
	if meta != nil {
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			errInfo := "Config contains undefined item: "
			for _, key := range undecoded {
				errInfo += key.String() + ", "
			}
			c.WarningMsgs = append(c.WarningMsgs, errInfo[:len(errInfo)-2])
		}
	}

	if c.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return errors.WithStack(err)
		}
		adjustString(&c.Name, fmt.Sprintf("%s-%s", defaultName, hostname))
	}
	adjustString(&c.DataDir, fmt.Sprintf("default.%s", c.Name))
	adjustString(&c.Tenant, defaultTenant)
	adjustString(&c.Backend, defaultBackend)
	adjustString(&c.MetaEndpoints, defaultMetaEndpoints)
	adjustString(&c.RootPath, defaultRootPath)

	adjustUint64(&c.SysIDBegin, catalog.SysIDBegin)
	adjustUint64(&c.SysIDEnd, catalog.SysIDEnd)
	adjustUint64(&c.UserIDBegin, catalog.UserIDBegin)
	adjustUint64(&c.UserIDEnd, catalog.UserIDEnd)

	return c.Validate()
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendEtcd, BackendLeveldb, BackendMemory:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	sys, user := c.SysIDRange(), c.UserIDRange()
	if sys.Begin >= sys.End {
		return errors.Errorf("empty system id range [%d, %d)", sys.Begin, sys.End)
	}
	if user.Begin >= user.End {
		return errors.Errorf("empty user id range [%d, %d)", user.Begin, user.End)
	}
	if sys.Overlaps(user) {
		return errors.Errorf("system id range [%d, %d) overlaps user id range [%d, %d)",
			sys.Begin, sys.End, user.Begin, user.End)
	}
	return nil
}

// SysIDRange returns the reserved ID range of the system tier.
func (c *Config) SysIDRange() id.IDRange {
	return id.IDRange{Begin: c.SysIDBegin, End: c.SysIDEnd}
}

// UserIDRange returns the allocatable ID range of the user tier.
func (c *Config) UserIDRange() id.IDRange {
	return id.IDRange{Begin: c.UserIDBegin, End: c.UserIDEnd}
}

// Clone returns a cloned configuration.
func (c *Config) Clone() *Config {
	cfg := &Config{}
	*cfg = *c
	return cfg
}

func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "<nil>"
	}
	return string(data)
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) (*toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, c)
	return &meta, errors.WithStack(err)
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}
