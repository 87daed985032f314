package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thediveo/enumflag/v2"
	"github.com/turbot/go-kit/helpers"
	"github.com/turbot/reshard/internal/config"
	"github.com/turbot/reshard/internal/constants"
	"github.com/turbot/reshard/internal/decode"
	"github.com/turbot/reshard/internal/display"
	"github.com/turbot/reshard/internal/error_helpers"
	"github.com/turbot/reshard/internal/gazetteer"
	"github.com/turbot/reshard/internal/logger"
	"github.com/turbot/reshard/internal/pipeline"
	"github.com/turbot/reshard/internal/record"
)

var (
	runInputCodec        = constants.CodecModeAuto
	runOutputCodec       = constants.CodecModeGzip
	runIncompleteRecords = constants.IncompleteRecordsSkip
)

func runCmd() *cobra.Command {
	runInputCodec = constants.CodecModeAuto
	runOutputCodec = constants.CodecModeGzip
	runIncompleteRecords = constants.IncompleteRecordsSkip

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Args:  cobra.NoArgs,
		Run:   runRunCmd,
		Short: "Reshard a directory of compressed files",
		Long: `Read every matching file below the input directory, normalize each line into a record and
write all records back out as a fixed number of balanced, compressed shard files.

Malformed lines are skipped and corrupt files are reported - neither stops the run.
The exit code is 2 if more files fail than --failure-tolerance allows.`,
	}

	addInputFlags(cmd, &runInputCodec)

	f := cmd.Flags()
	f.String(constants.ArgOutputDir, "", "Directory the shard files and manifest are written to")
	f.Int(constants.ArgDecodeWorkers, pipeline.DefaultDecodeWorkers, "Maximum number of files decoded at once")
	f.Int(constants.ArgEncodeWorkers, pipeline.DefaultEncodeWorkers, "Maximum number of shards written at once")
	f.Int(constants.ArgShards, pipeline.DefaultShards, "Number of shard files to write")
	f.Duration(constants.ArgFileTimeout, 0, "Deadline for decoding a single file, e.g. 5m (0 for none)")
	f.Var(enumflag.New(&runOutputCodec, constants.ArgOutputCodec, constants.CodecModeIds, enumflag.EnumCaseInsensitive),
		constants.ArgOutputCodec,
		fmt.Sprintf("Compression of the shard files. Possible values: %s", constants.FlagValues(constants.CodecModeIds)))
	f.Var(enumflag.New(&runIncompleteRecords, constants.ArgIncompleteRecords, constants.IncompleteRecordsModeIds, enumflag.EnumCaseInsensitive),
		constants.ArgIncompleteRecords,
		fmt.Sprintf("What to do with a record whose linked document is malformed. Possible values: %s", constants.FlagValues(constants.IncompleteRecordsModeIds)))
	f.Int(constants.ArgMaxLineBytes, decode.DefaultMaxLineBytes, "Longest line which can be read - a longer line fails its file")
	f.Int(constants.ArgMaxLineErrors, pipeline.DefaultMaxLineErrors, "Maximum number of skipped lines reported (-1 for all)")
	f.Uint64(constants.ArgOpenRetries, decode.DefaultOpenRetries, "Retries for opening a file when out of file handles")
	f.String(constants.ArgGazetteer, "", "JSON file of known places used to resolve record locations")
	f.Bool(constants.ArgSortOutput, false, "Order records by timestamp and id so the output is identical across runs")
	f.Int(constants.ArgFailureTolerance, config.NoTolerance, "Number of failed files allowed before the run fails (-1 for no limit)")
	f.Bool(constants.ArgProgress, true, "Show active progress of the run, set to false to disable")
	f.Bool(constants.ArgVerbose, false, "Show every shard in the summary")
	f.String(constants.ArgProfileDir, "", "Write CPU and heap profiles to this directory")
	_ = f.MarkHidden(constants.ArgProfileDir)

	return cmd
}

func addInputFlags(cmd *cobra.Command, inputCodec *constants.CodecMode) {
	f := cmd.Flags()
	f.String(constants.ArgInputDir, "", "Directory searched (recursively) for input files")
	f.String(constants.ArgPattern, pipeline.DefaultPattern, "File name pattern, or a bare extension such as .json.gz")
	f.Var(enumflag.New(inputCodec, constants.ArgInputCodec, constants.CodecModeIds, enumflag.EnumCaseInsensitive),
		constants.ArgInputCodec,
		fmt.Sprintf("Compression of the input files, auto to infer from the extension. Possible values: %s", constants.FlagValues(constants.CodecModeIds)))
}

func runRunCmd(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = helpers.ToError(r)
		}
		if err != nil {
			error_helpers.ShowError(cmd.ErrOrStderr(), err)
			setExitCodeForRunError(err)
		}
	}()

	err = doRun(ctx, cmd.OutOrStdout())
}

func doRun(ctx context.Context, w io.Writer) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// if diagnostic mode is set, print out config and return
	if _, ok := os.LookupEnv(constants.EnvConfigDump); ok {
		return dumpConfig(w, cfg)
	}

	if dir := viper.GetString(constants.ArgProfileDir); dir != "" {
		stopProfile := logger.StartCPUProfile(dir, "run")
		defer func() {
			stopProfile()
			logger.WriteHeapSnapshot(dir, "run")
		}()
	}

	var resolver record.LocationResolver
	if cfg.Gazetteer != "" {
		g, err := gazetteer.Load(cfg.Gazetteer)
		if err != nil {
			return err
		}
		resolver = g
	}

	opts := cfg.CoordinatorOptions(resolver)
	var progress *runProgress
	if viper.GetBool(constants.ArgProgress) && isatty.IsTerminal(os.Stdout.Fd()) {
		progress = newRunProgress()
		opts = append(opts, pipeline.WithStateObserver(progress.onStateChange))
	}

	c, err := pipeline.NewCoordinator(cfg.InputDir, cfg.OutputDir, opts...)
	if err != nil {
		return err
	}

	if progress != nil {
		progress.start(c)
	}
	res, err := c.Run(ctx)
	if progress != nil {
		progress.stop()
	}
	logger.LogMemStats("run complete")

	if res != nil && res.State != pipeline.StateFailed {
		display.RenderSummary(w, res, viper.GetBool(constants.ArgVerbose))
	}
	if err != nil {
		return err
	}

	failed := res.Stats.FilesFailed + res.Stats.ShardsFailed
	if cfg.ToleranceExceeded(failed) {
		return &toleranceExceededError{failed: failed, tolerance: cfg.FailureTolerance}
	}
	slog.Info("run complete", "run id", res.RunID, "records", res.Stats.RecordsProduced, "failed", failed)
	return nil
}

func dumpConfig(w io.Writer, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// runProgress drives a spinner showing the coordinator state and live counters
type runProgress struct {
	spinner *spinner.Spinner
	state   chan pipeline.State
	done    chan struct{}
}

func newRunProgress() *runProgress {
	return &runProgress{
		spinner: spinner.New(
			spinner.CharSets[14],
			100*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stdout),
		),
		state: make(chan pipeline.State, 8),
		done:  make(chan struct{}),
	}
}

func (p *runProgress) onStateChange(_, to pipeline.State) {
	select {
	case p.state <- to:
	default:
	}
}

func (p *runProgress) start(c *pipeline.Coordinator) {
	p.spinner.Start()
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-p.state:
			case <-ticker.C:
			}
			suffix := display.StatusLine(c.State(), c.Stats().Snapshot())
			p.spinner.Lock()
			p.spinner.Suffix = suffix
			p.spinner.Unlock()
		}
	}()
}

func (p *runProgress) stop() {
	close(p.done)
	p.spinner.Stop()
}
