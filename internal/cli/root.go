// Package cli implements the objfs command line front end.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/objectfs/internal/filestore"
	"github.com/koustreak/objectfs/internal/logger"
	"github.com/koustreak/objectfs/internal/objectfs"
)

// Opener builds the Adapter a command runs against.
type Opener func(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (*objectfs.Adapter, error)

type globalOptions struct {
	configPath string
	provider   string
	endpoint   string
	bucket     string
	accessKey  string
	secretKey  string
	region     string
	useSSL     bool
	pathStyle  bool
	logLevel   string
	logFormat  string
}

// NewRootCommand returns the objfs command tree. A nil open uses objectfs.Open.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = objectfs.Open
	}
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "objfs",
		Short: "Filesystem operations over an object storage bucket",
		Long: `objfs treats a bucket as a filesystem: directories are key prefixes
ending in "/", and every command maps to one or a few object storage calls.

Connection settings come from --config (YAML, ${VAR} expanded) and are
overridden by the individual flags.

The memory provider keeps nothing between runs: every invocation starts
from an empty bucket, so it only suits dry runs of a command line.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.provider, "provider", "", "storage provider: minio, s3 or memory (memory starts empty on every run, for dry runs)")
	pf.StringVar(&opts.endpoint, "endpoint", "", "storage endpoint (host:port or URL)")
	pf.StringVar(&opts.bucket, "bucket", "", "bucket to operate on")
	pf.StringVar(&opts.accessKey, "access-key", os.Getenv("OBJFS_ACCESS_KEY"), "access key ID")
	pf.StringVar(&opts.secretKey, "secret-key", os.Getenv("OBJFS_SECRET_KEY"), "secret access key")
	pf.StringVar(&opts.region, "region", "", "bucket region")
	pf.BoolVar(&opts.useSSL, "ssl", false, "use TLS")
	pf.BoolVar(&opts.pathStyle, "path-style", false, "force path-style bucket addressing")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "console", "log format: json or console")

	session := &session{opts: opts, open: open}
	root.AddCommand(
		newListCommand(session),
		newCatCommand(session),
		newPutCommand(session),
		newRemoveCommand(session),
		newRemoveDirCommand(session),
		newMkdirCommand(session),
		newMoveCommand(session),
		newCopyCommand(session),
		newStatCommand(session),
		newChmodCommand(session),
		newURLCommand(session),
	)
	return root
}

// Execute runs the objfs command tree with the process arguments.
func Execute() error {
	return NewRootCommand(nil).Execute()
}

// session resolves configuration and opens the adapter for a command.
type session struct {
	opts *globalOptions
	open Opener
}

func (s *session) adapter(cmd *cobra.Command) (*objectfs.Adapter, error) {
	cfg, err := s.config(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.New(&logger.Config{
		Level:  s.opts.logLevel,
		Format: s.opts.logFormat,
		Output: cmd.ErrOrStderr(),
	})
	return s.open(cmd.Context(), cfg, log)
}

func (s *session) config(cmd *cobra.Command) (*filestore.Config, error) {
	var cfg *filestore.Config
	if s.opts.configPath != "" {
		loaded, err := filestore.LoadConfig(s.opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = filestore.DefaultConfig("", "", "")
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = filestore.Provider(s.opts.provider)
	}
	if flags.Changed("endpoint") {
		cfg.Endpoint = s.opts.endpoint
	}
	if flags.Changed("bucket") {
		cfg.Bucket = s.opts.bucket
	}
	if flags.Changed("access-key") || cfg.AccessKey == "" {
		cfg.AccessKey = s.opts.accessKey
	}
	if flags.Changed("secret-key") || cfg.SecretKey == "" {
		cfg.SecretKey = s.opts.secretKey
	}
	if flags.Changed("region") {
		cfg.Region = s.opts.region
	}
	if flags.Changed("ssl") {
		cfg.UseSSL = s.opts.useSSL
	}
	if flags.Changed("path-style") {
		cfg.ForcePathStyle = s.opts.pathStyle
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
