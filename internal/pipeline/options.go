package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/decode"
	"github.com/turbot/reshard/internal/encode"
	"github.com/turbot/reshard/internal/record"
)

const (
	DefaultPattern       = "*.gz"
	DefaultDecodeWorkers = 8
	DefaultEncodeWorkers = 4
	DefaultShards        = 16
	DefaultMaxLineErrors = 1000
)

type CoordinatorOption func(*Coordinator) error

// WithPattern sets the file name pattern used for discovery
func WithPattern(pattern string) CoordinatorOption {
	return func(c *Coordinator) error {
		c.pattern = pattern
		return nil
	}
}

// WithInputCodec forces the codec of every input file - by default it is inferred from the extension
func WithInputCodec(name codec.Name) CoordinatorOption {
	return func(c *Coordinator) error {
		if name == "" {
			c.inputCodec = ""
			return nil
		}
		ic, err := codec.Lookup(name)
		if err != nil {
			return err
		}
		c.inputCodec = ic.Name()
		return nil
	}
}

func WithOutputCodec(name codec.Name) CoordinatorOption {
	return func(c *Coordinator) error {
		oc, err := codec.LookupWriter(name)
		if err != nil {
			return err
		}
		c.outputCodec = oc
		return nil
	}
}

func WithDecodeWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) error {
		if n < 1 {
			return fmt.Errorf("decode workers must be at least 1, got %d", n)
		}
		c.decodeWorkers = n
		return nil
	}
}

func WithEncodeWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) error {
		if n < 1 {
			return fmt.Errorf("encode workers must be at least 1, got %d", n)
		}
		c.encodeWorkers = n
		return nil
	}
}

func WithShards(g int) CoordinatorOption {
	return func(c *Coordinator) error {
		if g < 1 {
			return fmt.Errorf("shard count must be at least 1, got %d", g)
		}
		c.shards = g
		return nil
	}
}

// WithFileTimeout sets the deadline for decoding a single file - zero means no deadline
func WithFileTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) error {
		if d < 0 {
			return fmt.Errorf("file timeout cannot be negative")
		}
		c.fileTimeout = d
		return nil
	}
}

func WithParser(p record.Parser) CoordinatorOption {
	return func(c *Coordinator) error {
		c.decodeOpts.Parser = p
		return nil
	}
}

// WithLocationResolver sets the resolver used to normalize record locations
func WithLocationResolver(r record.LocationResolver) CoordinatorOption {
	return func(c *Coordinator) error {
		c.decodeOpts.Normalizer = record.NewNormalizer(r)
		return nil
	}
}

func WithIncompleteRecordPolicy(p decode.IncompletePolicy) CoordinatorOption {
	return func(c *Coordinator) error {
		switch p {
		case decode.IncompleteSkip, decode.IncompleteFail:
			c.decodeOpts.IncompleteRecords = p
			return nil
		}
		return fmt.Errorf("unknown incomplete record policy '%s'", p)
	}
}

func WithMaxLineBytes(n int) CoordinatorOption {
	return func(c *Coordinator) error {
		if n < 1 {
			return fmt.Errorf("max line bytes must be at least 1, got %d", n)
		}
		c.decodeOpts.MaxLineBytes = n
		return nil
	}
}

// WithMaxLineErrors caps the number of line failures kept in the result - negative means no cap
func WithMaxLineErrors(n int) CoordinatorOption {
	return func(c *Coordinator) error {
		c.maxLineErrors = n
		return nil
	}
}

// WithOpenRetries sets how many times a transient failure to open or create a file is retried
func WithOpenRetries(n uint64) CoordinatorOption {
	return func(c *Coordinator) error {
		c.decodeOpts.OpenRetries = n
		c.encodeOpts.CreateRetries = n
		return nil
	}
}

// WithSortOutput orders the aggregate by timestamp and id before partitioning,
// so the shard contents do not depend on the order files completed in
func WithSortOutput(sortOutput bool) CoordinatorOption {
	return func(c *Coordinator) error {
		c.sortOutput = sortOutput
		return nil
	}
}

// WithStateObserver registers a function called on every state transition
func WithStateObserver(o StateObserver) CoordinatorOption {
	return func(c *Coordinator) error {
		if o == nil {
			return errors.New("state observer cannot be nil")
		}
		c.observers = append(c.observers, o)
		return nil
	}
}

// WithoutManifest disables writing manifest.json
func WithoutManifest() CoordinatorOption {
	return func(c *Coordinator) error {
		c.writeManifest = false
		return nil
	}
}

func defaultDecodeOptions() decode.Options {
	return decode.Options{
		MaxLineBytes: decode.DefaultMaxLineBytes,
		OpenRetries:  decode.DefaultOpenRetries,
	}
}

func defaultEncodeOptions() encode.Options {
	return encode.Options{
		CreateRetries: encode.DefaultCreateRetries,
	}
}
