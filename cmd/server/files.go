package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/services"
	"github.com/damacus/your-files/internal/storage"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List the files and folders under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			browser, err := a.browser(ctx, services.BrowserOptions{})
			if err != nil {
				return err
			}

			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			listing, err := browser.List(ctx, prefix)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			for _, f := range listing.Folders {
				kind := "DIR"
				switch {
				case f.IsBigData:
					kind = "BIGDATA"
				case f.IsSharedFolder:
					kind = "SHARED"
				}
				fmt.Fprintf(w, "%s\t%s\t\t%s\n", kind, f.Name+"/", f.Prefix)
			}
			for _, f := range listing.Files {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.FormattedSize, f.Name, f.Modified, f.Key)
			}
			return w.Flush()
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files and directories, keeping their relative paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sources, err := collectLocal(args)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return errors.New("no files to upload")
			}

			browser, err := a.browser(ctx, services.BrowserOptions{
				UploadOptions: []services.UploaderOption{
					services.WithUploadProgress(func(_ int, t models.UploadTask) {
						logger.Ctx(ctx).Debug().
							Str("key", t.Key).
							Str("status", string(t.Status)).
							Int("progress", t.Progress).
							Msg("upload progress")
					}),
				},
			})
			if err != nil {
				return err
			}

			run, err := browser.Upload(ctx, sources, prefix)
			if err != nil {
				return err
			}
			go abortOnDone(ctx, run.Done(), run.Abort)

			failed := 0
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			for _, t := range run.Wait() {
				if t.Status != models.UploadUploaded {
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Status, t.Key, t.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files were not uploaded", failed, len(sources))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "destination prefix (defaults to the root)")
	return cmd
}

// collectLocal expands each path into upload sources. Directories keep their
// own name as the first path segment.
func collectLocal(paths []string) ([]services.UploadSource, error) {
	var out []services.UploadSource
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		sources, err := services.CollectFiles(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
		if err != nil {
			return nil, err
		}
		out = append(out, sources...)
	}
	return out, nil
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key|prefix/>...",
		Short: "Delete files, and folders recursively when the argument ends in /",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var files, folders []string
			for _, arg := range args {
				if strings.HasSuffix(arg, storage.Delimiter) {
					folders = append(folders, arg)
				} else {
					files = append(files, arg)
				}
			}

			browser, err := a.browser(ctx, services.BrowserOptions{})
			if err != nil {
				return err
			}

			run := browser.Delete(ctx, files, folders)
			go abortOnDone(ctx, run.Done(), run.Abort)

			failed := 0
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			for _, t := range run.Wait() {
				status := "deleted"
				switch {
				case t.DeleteError != "":
					status = "failed"
					failed++
				case !t.DeleteFinished:
					status = "skipped"
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", status, t.Key, t.KeysDeleted, t.DeleteError)
			}
			fmt.Fprintln(w, run.String())
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d items were not deleted", failed, len(args))
			}
			return nil
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <prefix> <name>",
		Short: "Create an empty folder under a prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			browser, err := a.browser(ctx, services.BrowserOptions{})
			if err != nil {
				return err
			}
			key, err := browser.CreateFolder(ctx, args[0], args[1])
			if err != nil {
				if errors.Is(err, services.ErrFolderExists) {
					return fmt.Errorf("%s: %w", key, err)
				}
				return err
			}
			fmt.Fprintln(a.out, key)
			return nil
		},
	}
}

// abortOnDone aborts a run when ctx is cancelled (Ctrl-C) before it ends.
func abortOnDone(ctx context.Context, done <-chan struct{}, abort func()) {
	select {
	case <-ctx.Done():
		abort()
	case <-done:
	}
}
