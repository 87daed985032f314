package constants

const (
	ReshardShortDescription = "Re-partition a corpus of compressed line-delimited files into balanced shards"
	ReshardLongDescription  = `
Reshard: many files in, G balanced shards out.

Reshard reads a directory of compressed, line-delimited JSON documents, normalizes
every line into a record, merges everything into one aggregate and writes it back
out as a fixed number of equally sized, compressed shard files.

  - Decoding and encoding run on bounded worker pools
  - Corrupt files and malformed lines are skipped and reported, never fatal
  - Shards are written atomically, with a manifest describing the run

Common commands:

  # Reshard all gzip files below ./raw into 32 zstd shards
  reshard run --input-dir ./raw --output-dir ./shards --shards 32 --output-codec zstd

  # List the files a run would read
  reshard discover --input-dir ./raw --pattern "*.json.gz"

  # Get help for a command
  reshard help run
`
)
