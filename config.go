package lsmkv

import "github.com/sirupsen/logrus"

const (
	defaultMemTableSize           = 1024
	defaultDiskTablesLimitByLevel = 4
	defaultDataBlockAlign         = 0
	defaultMaxLevel               = 7
)

// Config holds every tunable of a Storage instance (spec.md §6/§8), built
// via functional Options the way the teacher's DBConfig/DBSetting pair do.
type Config struct {
	MemTableSize           int
	DiskTablesLimitByLevel int
	DataBlockSize          int
	DataBlockAlign         int
	MaxLevel               uint8

	Logger   *logrus.Logger
	LogLevel logrus.Level
}

// Option mutates a Config at construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MemTableSize:           defaultMemTableSize,
		DiskTablesLimitByLevel: defaultDiskTablesLimitByLevel,
		DataBlockSize:          defaultDataBlockSize,
		DataBlockAlign:         defaultDataBlockAlign,
		MaxLevel:               defaultMaxLevel,
		Logger:                 logrus.New(),
		LogLevel:               logrus.WarnLevel,
	}
}

// WithMemTableSize sets the maximum number of unique keys the MemTable
// holds before a flush is triggered.
func WithMemTableSize(n int) Option {
	return func(c *Config) { c.MemTableSize = n }
}

// WithDiskTablesLimitByLevel sets the number of SSTables at a level that
// triggers compaction of that level.
func WithDiskTablesLimitByLevel(n int) Option {
	return func(c *Config) { c.DiskTablesLimitByLevel = n }
}

// WithDataBlockSize sets the fixed SSTable block size in bytes.
func WithDataBlockSize(n int) Option {
	return func(c *Config) { c.DataBlockSize = n }
}

// WithDataBlockAlign sets the alignment requested for block read buffers.
func WithDataBlockAlign(n int) Option {
	return func(c *Config) { c.DataBlockAlign = n }
}

// WithMaxLevel sets the highest compaction level; beyond it, compaction
// re-merges in place.
func WithMaxLevel(level uint8) Option {
	return func(c *Config) { c.MaxLevel = level }
}

// WithLogger overrides the logrus logger used for the store's structured
// log output. Defaults to logrus.New() at WarnLevel.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithLogLevel sets the level applied to the store's logger, whether the
// default one or one supplied via WithLogger.
func WithLogLevel(level logrus.Level) Option {
	return func(c *Config) { c.LogLevel = level }
}

func generateConfig(opts ...Option) *Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	c.Logger.SetLevel(c.LogLevel)
	return c
}
