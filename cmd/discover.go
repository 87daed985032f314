package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/go-kit/helpers"
	"github.com/turbot/reshard/internal/codec"
	"github.com/turbot/reshard/internal/config"
	"github.com/turbot/reshard/internal/constants"
	"github.com/turbot/reshard/internal/display"
	"github.com/turbot/reshard/internal/error_helpers"
	"github.com/turbot/reshard/internal/filepaths"
	"golang.org/x/sync/errgroup"
)

// maximum number of files read at once by --verify
const verifyConcurrency = 16

var discoverInputCodec = constants.CodecModeAuto

func discoverCmd() *cobra.Command {
	discoverInputCodec = constants.CodecModeAuto

	cmd := &cobra.Command{
		Use:   "discover [flags]",
		Args:  cobra.NoArgs,
		Run:   runDiscoverCmd,
		Short: "List the files a run would read",
		Long: `List every file below the input directory which matches the pattern, with the codec it
will be decoded with and its size.

With --verify the leading bytes of each file are read and the detected format is shown
alongside, flagging files whose content does not match their extension.`,
	}

	addInputFlags(cmd, &discoverInputCodec)
	cmd.Flags().Bool(constants.ArgVerify, false, "Read the header of each file and check its format")

	return cmd
}

func runDiscoverCmd(cmd *cobra.Command, _ []string) {
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

	err = doDiscover(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func doDiscover(ctx context.Context, w, errW io.Writer) error {
	cfg, err := config.LoadInput(viper.GetViper())
	if err != nil {
		return err
	}

	files, skipped, err := filepaths.Discover(cfg.InputDir, cfg.Pattern, cfg.InputCodec)
	if err != nil {
		return err
	}

	rows := make([]display.FileRow, len(files))
	for i, f := range files {
		rows[i] = display.FileRow{SourceFile: f}
	}

	verify := viper.GetBool(constants.ArgVerify)
	if verify {
		if err := sniffAll(ctx, rows); err != nil {
			return err
		}
	}

	display.RenderFiles(w, rows, verify)
	for _, s := range skipped {
		error_helpers.ShowWarning(errW, error_helpers.TransformError(s).Error())
	}
	return nil
}

// sniffAll detects the format of every file from its content, reading a bounded number of files at once
func sniffAll(ctx context.Context, rows []display.FileRow) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row.Detected, row.Err = sniffFile(row.Path)
			return nil
		})
	}
	return g.Wait()
}

func sniffFile(path string) (codec.Name, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, codec.SniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	name, _ := codec.Sniff(header[:n])
	return name, nil
}
