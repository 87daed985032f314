package constants

import (
	"slices"
	"strings"

	"github.com/thediveo/enumflag/v2"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/decode"
)

type CodecMode enumflag.Flag

const (
	// CodecModeAuto infers the codec from the file extension - only valid for input
	CodecModeAuto CodecMode = iota
	CodecModeNone
	CodecModeGzip
	CodecModeZstd
	CodecModeXz
	CodecModeSnappy
	CodecModeBzip2
)

var CodecModeIds = map[CodecMode][]string{
	CodecModeAuto:   {"auto"},
	CodecModeNone:   {string(codec.None), "plain"},
	CodecModeGzip:   {string(codec.Gzip), "gz"},
	CodecModeZstd:   {string(codec.Zstd), "zst"},
	CodecModeXz:     {string(codec.Xz)},
	CodecModeSnappy: {string(codec.Snappy), "sz"},
	CodecModeBzip2:  {string(codec.Bzip2), "bz2"},
}

// CodecName returns the codec for the mode - empty for CodecModeAuto
func (m CodecMode) CodecName() codec.Name {
	if m == CodecModeAuto {
		return ""
	}
	return codec.Name(CodecModeIds[m][0])
}

type IncompleteRecordsMode enumflag.Flag

const (
	IncompleteRecordsSkip IncompleteRecordsMode = iota
	IncompleteRecordsFail
)

var IncompleteRecordsModeIds = map[IncompleteRecordsMode][]string{
	IncompleteRecordsSkip: {string(decode.IncompleteSkip)},
	IncompleteRecordsFail: {string(decode.IncompleteFail)},
}

func (m IncompleteRecordsMode) Policy() decode.IncompletePolicy {
	return decode.IncompletePolicy(IncompleteRecordsModeIds[m][0])
}

// ParseFlagValue finds the mode whose ids contain value (case-insensitive), used for values read from
// env vars and config files which do not go through the flag parser
func ParseFlagValue[T comparable](mappings map[T][]string, value string) (T, bool) {
	for mode, ids := range mappings {
		for _, id := range ids {
			if strings.EqualFold(id, strings.TrimSpace(value)) {
				return mode, true
			}
		}
	}
	var zero T
	return zero, false
}

// FlagValues returns the primary id of each mode, sorted
func FlagValues[T comparable](mappings map[T][]string) []string {
	var res = make([]string, 0, len(mappings))
	for _, v := range mappings {
		res = append(res, v[0])
	}
	slices.Sort(res)
	return res
}
