package constants

// flag names
const (
	ArgConfig            = "config"
	ArgInputDir          = "input-dir"
	ArgOutputDir         = "output-dir"
	ArgPattern           = "pattern"
	ArgDecodeWorkers     = "decode-workers"
	ArgEncodeWorkers     = "encode-workers"
	ArgShards            = "shards"
	ArgFileTimeout       = "file-timeout"
	ArgInputCodec        = "input-codec"
	ArgOutputCodec       = "output-codec"
	ArgIncompleteRecords = "incomplete-records"
	ArgMaxLineBytes      = "max-line-bytes"
	ArgMaxLineErrors     = "max-line-errors"
	ArgOpenRetries       = "open-retries"
	ArgGazetteer         = "gazetteer"
	ArgSortOutput        = "sort-output"
	ArgFailureTolerance  = "failure-tolerance"
	ArgProgress          = "progress"
	ArgVerify            = "verify"
	ArgProfileDir        = "profile-dir"
	ArgVerbose           = "verbose"
)

// exit codes
const (
	ExitCodeSuccess           = 0
	ExitCodeFatal             = 1
	ExitCodeToleranceExceeded = 2
	ExitCodeCancelled         = 130
)
