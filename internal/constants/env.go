package constants

const (
	// EnvPrefix is the prefix of environment variables which set flag values, e.g. RESHARD_SHARDS
	EnvPrefix = "RESHARD"

	EnvLogLevel = "RESHARD_LOG_LEVEL"
	// EnvConfigDump is an undocumented variable used to print the resolved config and exit
	EnvConfigDump = "RESHARD_CONFIG_DUMP"
)
