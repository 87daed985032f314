package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/constants"
	"github.com/turbot/reshard/internal/decode"
	"github.com/turbot/reshard/internal/filepaths"
	"github.com/turbot/reshard/internal/pipeline"
	"github.com/turbot/reshard/internal/record"
)

// NoTolerance disables the failure tolerance check
const NoTolerance = -1

// Config is the resolved configuration of a run, from flags, env vars and the config file
type Config struct {
	InputDir      string
	OutputDir     string
	Pattern       string
	DecodeWorkers int
	EncodeWorkers int
	Shards        int
	// zero means no deadline
	FileTimeout time.Duration
	// empty means infer from the file extension
	InputCodec        codec.Name
	OutputCodec       codec.Name
	IncompleteRecords decode.IncompletePolicy
	MaxLineBytes      int
	MaxLineErrors     int
	OpenRetries       uint64
	Gazetteer         string
	SortOutput        bool
	// the number of failed files (and shards) allowed before the run is reported as failed - NoTolerance disables the check
	FailureTolerance int
}

// SetDefaults sets the default value of every config key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(constants.ArgPattern, pipeline.DefaultPattern)
	v.SetDefault(constants.ArgDecodeWorkers, pipeline.DefaultDecodeWorkers)
	v.SetDefault(constants.ArgEncodeWorkers, pipeline.DefaultEncodeWorkers)
	v.SetDefault(constants.ArgShards, pipeline.DefaultShards)
	v.SetDefault(constants.ArgFileTimeout, time.Duration(0))
	v.SetDefault(constants.ArgInputCodec, "auto")
	v.SetDefault(constants.ArgOutputCodec, string(codec.Gzip))
	v.SetDefault(constants.ArgIncompleteRecords, string(decode.IncompleteSkip))
	v.SetDefault(constants.ArgMaxLineBytes, decode.DefaultMaxLineBytes)
	v.SetDefault(constants.ArgMaxLineErrors, pipeline.DefaultMaxLineErrors)
	v.SetDefault(constants.ArgOpenRetries, decode.DefaultOpenRetries)
	v.SetDefault(constants.ArgSortOutput, false)
	v.SetDefault(constants.ArgFailureTolerance, NoTolerance)
}

// InitViper configures env var lookup (RESHARD_ prefix, dashes become underscores) and reads the
// config file if one is given
func InitViper(v *viper.Viper, configFile string) error {
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile == "" {
		return nil
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	return nil
}

// Load builds and validates the Config from v
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		InputDir:         v.GetString(constants.ArgInputDir),
		OutputDir:        v.GetString(constants.ArgOutputDir),
		Pattern:          filepaths.PatternForExtension(v.GetString(constants.ArgPattern)),
		DecodeWorkers:    v.GetInt(constants.ArgDecodeWorkers),
		EncodeWorkers:    v.GetInt(constants.ArgEncodeWorkers),
		Shards:           v.GetInt(constants.ArgShards),
		FileTimeout:      v.GetDuration(constants.ArgFileTimeout),
		MaxLineBytes:     v.GetInt(constants.ArgMaxLineBytes),
		MaxLineErrors:    v.GetInt(constants.ArgMaxLineErrors),
		OpenRetries:      v.GetUint64(constants.ArgOpenRetries),
		Gazetteer:        v.GetString(constants.ArgGazetteer),
		SortOutput:       v.GetBool(constants.ArgSortOutput),
		FailureTolerance: v.GetInt(constants.ArgFailureTolerance),
	}

	var errs []error
	if mode, ok := constants.ParseFlagValue(constants.CodecModeIds, v.GetString(constants.ArgInputCodec)); ok {
		c.InputCodec = mode.CodecName()
	} else {
		errs = append(errs, invalidValue(constants.ArgInputCodec, v.GetString(constants.ArgInputCodec), constants.CodecModeIds))
	}
	if mode, ok := constants.ParseFlagValue(constants.CodecModeIds, v.GetString(constants.ArgOutputCodec)); ok {
		c.OutputCodec = mode.CodecName()
	} else {
		errs = append(errs, invalidValue(constants.ArgOutputCodec, v.GetString(constants.ArgOutputCodec), constants.CodecModeIds))
	}
	if mode, ok := constants.ParseFlagValue(constants.IncompleteRecordsModeIds, v.GetString(constants.ArgIncompleteRecords)); ok {
		c.IncompleteRecords = mode.Policy()
	} else {
		errs = append(errs, invalidValue(constants.ArgIncompleteRecords, v.GetString(constants.ArgIncompleteRecords), constants.IncompleteRecordsModeIds))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadInput builds the input side of the Config from v - used by commands which only read the corpus
func LoadInput(v *viper.Viper) (*Config, error) {
	c := &Config{
		InputDir: v.GetString(constants.ArgInputDir),
		Pattern:  filepaths.PatternForExtension(v.GetString(constants.ArgPattern)),
	}
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, fmt.Errorf("--%s is required", constants.ArgInputDir))
	}
	if mode, ok := constants.ParseFlagValue(constants.CodecModeIds, v.GetString(constants.ArgInputCodec)); ok {
		c.InputCodec = mode.CodecName()
	} else {
		errs = append(errs, invalidValue(constants.ArgInputCodec, v.GetString(constants.ArgInputCodec), constants.CodecModeIds))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func invalidValue[T comparable](arg, value string, ids map[T][]string) error {
	return fmt.Errorf("invalid value '%s' for --%s (allowed: %s)", value, arg, strings.Join(constants.FlagValues(ids), ", "))
}

// Validate returns every problem with the config, joined
func (c *Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, fmt.Errorf("--%s is required", constants.ArgInputDir))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("--%s is required", constants.ArgOutputDir))
	}
	if c.DecodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("--%s must be at least 1", constants.ArgDecodeWorkers))
	}
	if c.EncodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("--%s must be at least 1", constants.ArgEncodeWorkers))
	}
	if c.Shards < 1 {
		errs = append(errs, fmt.Errorf("--%s must be at least 1", constants.ArgShards))
	}
	if c.FileTimeout < 0 {
		errs = append(errs, fmt.Errorf("--%s cannot be negative", constants.ArgFileTimeout))
	}
	if c.MaxLineBytes < 1 {
		errs = append(errs, fmt.Errorf("--%s must be at least 1", constants.ArgMaxLineBytes))
	}
	if c.FailureTolerance < NoTolerance {
		errs = append(errs, fmt.Errorf("--%s must be %d (no limit) or more", constants.ArgFailureTolerance, NoTolerance))
	}
	if c.OutputCodec == "" {
		errs = append(errs, fmt.Errorf("--%s cannot be auto", constants.ArgOutputCodec))
	} else if _, err := codec.LookupWriter(c.OutputCodec); err != nil {
		errs = append(errs, fmt.Errorf("--%s: %w", constants.ArgOutputCodec, err))
	}
	return errors.Join(errs...)
}

// CoordinatorOptions converts the config into pipeline options. resolver may be nil.
func (c *Config) CoordinatorOptions(resolver record.LocationResolver) []pipeline.CoordinatorOption {
	opts := []pipeline.CoordinatorOption{
		pipeline.WithPattern(c.Pattern),
		pipeline.WithInputCodec(c.InputCodec),
		pipeline.WithOutputCodec(c.OutputCodec),
		pipeline.WithDecodeWorkers(c.DecodeWorkers),
		pipeline.WithEncodeWorkers(c.EncodeWorkers),
		pipeline.WithShards(c.Shards),
		pipeline.WithFileTimeout(c.FileTimeout),
		pipeline.WithIncompleteRecordPolicy(c.IncompleteRecords),
		pipeline.WithMaxLineBytes(c.MaxLineBytes),
		pipeline.WithMaxLineErrors(c.MaxLineErrors),
		pipeline.WithOpenRetries(c.OpenRetries),
		pipeline.WithSortOutput(c.SortOutput),
	}
	if resolver != nil {
		opts = append(opts, pipeline.WithLocationResolver(resolver))
	}
	return opts
}

// ToleranceExceeded returns whether the number of failures is more than the configured tolerance
func (c *Config) ToleranceExceeded(failures int64) bool {
	return c.FailureTolerance != NoTolerance && failures > int64(c.FailureTolerance)
}
