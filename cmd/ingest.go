package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/registry-cli/internal/feed"
	"github.com/sells-group/registry-cli/internal/ingest"
	"github.com/sells-group/registry-cli/internal/registry"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest registry feed files into the corpus",
	Long: `Ingest fixed-width registry feed files into the entity corpus.

The path may be a single feed file or a directory; in directory mode every
file matching a layout's naming pattern is processed in lexicographic order,
one sync run per file. With --fetch, feed files are first downloaded from the
given FTP URL into the temp directory and the path argument is omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))

		fetchURL, _ := cmd.Flags().GetString("fetch")
		if fetchURL == "" && len(args) == 0 {
			return eris.New("ingest: a path argument or --fetch is required")
		}

		layouts, err := loadLayouts()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		if fetchURL != "" {
			tempDir := cfg.Feed.TempDir
			if err := os.MkdirAll(tempDir, 0o755); err != nil {
				return eris.Wrapf(err, "ingest: create temp dir %s", tempDir)
			}

			f := feed.NewFetcher(time.Duration(cfg.Feed.FTPTimeout) * time.Second)
			var fetched int
			for i := range layouts {
				files, err := f.Fetch(ctx, fetchURL, layouts[i].FilePattern, tempDir)
				if err != nil {
					return eris.Wrapf(err, "ingest: fetch %s", layouts[i].FilePattern)
				}
				fetched += len(files)
			}
			log.Info("feed download complete", zap.Int("files", fetched), zap.String("dir", tempDir))
			if path == "" {
				path = tempDir
			}
		}

		syncType, _ := cmd.Flags().GetString("sync-type")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		ing := ingest.New(st, layouts, ingest.Options{
			SyncType:      syncType,
			BatchSize:     batchSize,
			ProgressEvery: cfg.Feed.ProgressEvery,
		})

		runs, err := ing.ProcessPath(ctx, path)
		if len(runs) > 0 {
			formatRuns(os.Stdout, runs)
		}
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return nil
	},
}

// loadLayouts returns the built-in feed layouts, or the override set from
// the configured layout file.
func loadLayouts() ([]feed.Layout, error) {
	if cfg.Feed.LayoutFile == "" {
		return feed.BuiltinLayouts(), nil
	}
	return feed.LoadLayouts(cfg.Feed.LayoutFile)
}

func formatRuns(w *os.File, runs []registry.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCATEGORY\tSTATUS\tPROCESSED\tADDED\tUPDATED\tERRORS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.SourceFile, r.Category, r.Status,
			r.RecordsProcessed, r.RecordsAdded, r.RecordsUpdated, r.ErrorCount)
	}
	tw.Flush()
}

func init() {
	ingestCmd.Flags().String("fetch", "", "FTP URL to download feed files from before ingesting")
	ingestCmd.Flags().String("sync-type", "full", "sync type recorded on the run: full or incremental")
	ingestCmd.Flags().Int("batch-size", 0, "records per bulk upsert (default 500)")
	rootCmd.AddCommand(ingestCmd)
}
