package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/lister"
	"github.com/koustreak/objectfs/internal/objectfs"
)

func newListCommand(s *session) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory",
		Long: `List the directories and files directly under dir, or the whole subtree
with --recursive. With no dir the bucket root is listed.

Each line is: type, size, modification time, path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			entries, err := fs.ListContents(cmd.Context(), dir, recursive)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if e.Type == lister.TypeDirectory {
					fmt.Fprintf(out, "%-4s %12s %-20s %s\n", e.Type, "-", "-", e.Path)
					continue
				}
				modified := time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%-4s %12d %-20s %s\n", e.Type, e.Size, modified, e.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	return cmd
}

func newCatCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write an object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			rc, err := fs.ReadStream(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
				return errs.Wrap(errs.ErrKindBackendFailed, "failed to read object", err).WithPath(args[0])
			}
			return nil
		},
	}
}

func newPutCommand(s *session) *cobra.Command {
	var (
		contentType string
		public      bool
	)
	cmd := &cobra.Command{
		Use:   "put <path> [file|-]",
		Short: "Upload a local file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return errs.Wrap(errs.ErrKindInvalidInput, "failed to open local file", err).WithPath(args[1])
				}
				defer f.Close()
				src = f
			}

			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			opts := objectfs.WriteOptions{ContentType: contentType}
			if public {
				opts.Visibility = objectfs.VisibilityPublic
			}
			return fs.WriteStream(cmd.Context(), args[0], src, opts)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (detected when empty)")
	cmd.Flags().BoolVar(&public, "public", false, "make the object publicly readable")
	return cmd
}

func newRemoveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			for _, p := range args {
				if err := fs.Delete(cmd.Context(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newRemoveDirCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <dir>",
		Short: "Delete a directory and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()
			return fs.DeleteDirectory(cmd.Context(), args[0])
		},
	}
}

func newMkdirCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>",
		Short: "Create a directory placeholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()
			return fs.CreateDirectory(cmd.Context(), args[0])
		},
	}
}

func newMoveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Rename an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()
			return fs.Move(cmd.Context(), args[0], args[1])
		},
	}
}

func newCopyCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <src> <dst>",
		Short: "Copy an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()
			return fs.Copy(cmd.Context(), args[0], args[1])
		},
	}
}

func newStatCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show object metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			ctx := cmd.Context()
			info, err := fs.Metadata(ctx, args[0])
			if err != nil {
				return err
			}
			vis, err := fs.Visibility(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:          %s\n", info.Key)
			fmt.Fprintf(out, "size:          %d\n", info.Size)
			fmt.Fprintf(out, "content-type:  %s\n", info.ContentType)
			fmt.Fprintf(out, "etag:          %s\n", info.ETag)
			fmt.Fprintf(out, "last-modified: %s\n", info.LastModified.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "visibility:    %s\n", vis.Visibility)
			return nil
		},
	}
}

func newChmodCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:       "chmod <public|private> <path>",
		Short:     "Change object visibility",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(objectfs.VisibilityPublic), string(objectfs.VisibilityPrivate)},
		RunE: func(cmd *cobra.Command, args []string) error {
			vis := objectfs.Visibility(args[0])
			if vis != objectfs.VisibilityPublic && vis != objectfs.VisibilityPrivate {
				return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown visibility %q", args[0]))
			}
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()
			return fs.SetVisibility(cmd.Context(), args[1], vis)
		},
	}
}

func newURLCommand(s *session) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print a presigned download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := s.adapter(cmd)
			if err != nil {
				return err
			}
			defer fs.Close()

			u, err := fs.PublicURL(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "how long the URL stays valid")
	return cmd
}
