package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rawwebapi/config"
	"rawwebapi/task"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert FILE...",
	Short: "Convert local .raw files and print one result per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, status, err := resolveRunner(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if runner == nil {
			return fmt.Errorf("%w: %s", task.ErrConverterUnavailable, status.Message)
		}
		return convertFiles(cmd, cfg, runner, args)
	},
}

func convertFiles(cmd *cobra.Command, cfg *config.Config, runner task.Runner, paths []string) error {
	manager, err := task.NewManager(cfg, runner)
	if err != nil {
		return err
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	uploads := make([]task.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p, err)
		}
		files = append(files, f)
		uploads = append(uploads, task.Upload{Name: filepath.Base(p), Reader: f})
	}

	results, err := manager.Convert(cmd.Context(), uploads)
	if err != nil {
		return err
	}

	failed := printResults(cmd.OutOrStdout(), results)
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to convert", failed, len(results))
	}
	return nil
}

func printResults(w io.Writer, results []task.Result) int {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	failed := 0
	for _, r := range results {
		if r.Succeeded {
			ok.Fprint(w, "converted ")
			fmt.Fprintf(w, "%s -> %s\n", r.Name, r.OutputPath)
			continue
		}
		failed++
		bad.Fprint(w, "failed    ")
		fmt.Fprintf(w, "%s: %s\n", r.Name, r.Error)
	}
	return failed
}
