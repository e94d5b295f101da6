// Command is24 is a command line client for the ImmobilienScout24 offer API.
//
// Credentials are read from the IS24_CONSUMER_KEY, IS24_CONSUMER_SECRET,
// IS24_TOKEN_KEY and IS24_TOKEN_SECRET environment variables (optionally
// loaded from a .env file) unless given as flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pdir/immobilienscout-api/pkg/client"
	"github.com/pdir/immobilienscout-api/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const userAgent = "is24-cli/0.1"

// exitRateLimited is the exit status when the service throttled a request.
const exitRateLimited = 3

type options struct {
	creds    client.Credentials
	envFile  string
	baseURL  string
	timeout  time.Duration
	rps      float64
	debug    bool
	pretty   bool
	logLevel string
}

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		if client.IsRateLimited(err) {
			fmt.Fprintln(os.Stderr, "is24: rate limit exceeded, try again later:", err)
			os.Exit(exitRateLimited)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "is24",
		Short:         "Command line client for the ImmobilienScout24 offer API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil {
					return fmt.Errorf("load env file %s: %w", opts.envFile, err)
				}
			}

			if !cmd.Flags().Changed("debug") {
				if v, ok := os.LookupEnv("IS24_DEBUG"); ok {
					debug, err := strconv.ParseBool(v)
					if err != nil {
						return fmt.Errorf("parse IS24_DEBUG: %w", err)
					}
					opts.debug = debug
				}
			}

			level := logging.LogLevel(opts.logLevel)
			if opts.debug {
				level = logging.LevelDebug
			}
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: opts.pretty,
				Output: cmd.ErrOrStderr(),
			})
			log.Debug().Str("base_url", opts.baseURL).Msg("debug logging enabled")
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.creds.ConsumerKey, "consumer-key", "", "OAuth consumer key (default $IS24_CONSUMER_KEY)")
	flags.StringVar(&opts.creds.ConsumerSecret, "consumer-secret", "", "OAuth consumer secret (default $IS24_CONSUMER_SECRET)")
	flags.StringVar(&opts.creds.TokenKey, "token-key", "", "OAuth access token (default $IS24_TOKEN_KEY)")
	flags.StringVar(&opts.creds.TokenSecret, "token-secret", "", "OAuth access token secret (default $IS24_TOKEN_SECRET)")
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this .env file")
	flags.StringVar(&opts.baseURL, "base-url", client.DefaultBaseURL, "API host")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	flags.Float64Var(&opts.rps, "rps", 0, "Client-side request pacing in requests per second (0 disables)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Dump requests and responses (default $IS24_DEBUG)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable log output")
	flags.StringVar(&opts.logLevel, "log-level", string(logging.LevelWarn), "Log level: debug, info, warn, error, off")

	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newListAllCmd(opts))
	rootCmd.AddCommand(newGetCmd(opts))
	rootCmd.AddCommand(newAttachmentsCmd(opts))
	rootCmd.AddCommand(newContactCmd(opts))
	rootCmd.AddCommand(newFilenameCmd())
	rootCmd.AddCommand(newRawCmd(opts))

	return rootCmd
}

func newClient(opts *options) (*client.Client, error) {
	creds, err := client.ResolveCredentials(opts.creds, client.EnvCredentials)
	if err != nil {
		return nil, err
	}
	if !creds.Complete() {
		log.Warn().Stringer("credentials", creds).Msg("incomplete credentials, requests will likely be rejected")
	}

	cfg := client.DefaultConfig(creds)
	cfg.BaseURL = opts.baseURL
	cfg.Timeout = opts.timeout
	cfg.RequestsPerSecond = opts.rps
	cfg.Debug = opts.debug
	cfg.UserAgent = userAgent

	return client.New(cfg)
}

// withClient runs fn with a fresh client and prints its result as JSON.
func withClient(cmd *cobra.Command, opts *options, fn func(context.Context, *client.Client) (any, error)) error {
	c, err := newClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	result, err := fn(cmd.Context(), c)
	if err != nil {
		return err
	}
	log.Debug().Str("command", cmd.Name()).Dur("elapsed", time.Since(start)).Msg("command completed")

	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", client.ErrInvalidID, arg)
	}
	return id, nil
}

func newListCmd(opts *options) *cobra.Command {
	var list client.ListOptions
	var envelope bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of your real estates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// ListOptions treats zero as the default; flags already carry the defaults.
			if list.PageNumber < 1 || list.PageSize < 1 {
				return fmt.Errorf("%w: page %d, size %d", client.ErrInvalidPaging, list.PageNumber, list.PageSize)
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				if envelope {
					env, err := c.ListPageEnvelope(ctx, list)
					if err != nil || env == nil {
						return nil, err
					}
					return env.Raw, nil
				}
				return c.ListPage(ctx, list)
			})
		},
	}

	cmd.Flags().IntVar(&list.PageNumber, "page", 1, "Page number")
	cmd.Flags().IntVar(&list.PageSize, "page-size", client.DefaultPageSize, "Elements per page")
	cmd.Flags().BoolVar(&list.IncludeArchived, "archived", false, "Include archived real estates")
	cmd.Flags().StringVar(&list.PublishChannel, "publish-channel", "", "Restrict to one publish channel")
	cmd.Flags().BoolVar(&envelope, "envelope", false, "Print the whole page including paging metadata")

	return cmd
}

func newListAllCmd(opts *options) *cobra.Command {
	var all client.AllOptions

	cmd := &cobra.Command{
		Use:   "list-all",
		Short: "List all of your real estates across every page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return c.ListAll(ctx, all)
			})
		},
	}

	cmd.Flags().BoolVar(&all.WithDetails, "details", false, "Replace every element by its full record")
	cmd.Flags().BoolVar(&all.IncludeArchived, "archived", false, "Include archived real estates")
	cmd.Flags().BoolVar(&all.ActiveOnly, "active-only", false, "Drop INACTIVE real estates")

	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one real estate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return c.GetRealEstate(ctx, id)
			})
		},
	}
}

func newAttachmentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "attachments ID",
		Short: "Show the attachments of one real estate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return c.GetAttachments(ctx, id)
			})
		},
	}
}

func newContactCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "contact ID",
		Short: "Show one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return c.GetContact(ctx, id)
			})
		},
	}
}

func newFilenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filename URL",
		Short: "Print the file name segment of an attachment URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := client.AttachmentFilename(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
			return err
		},
	}
}

func newRawCmd(opts *options) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "raw RESOURCE",
		Short: "Send a signed request and print the response body",
		Long: "Send a signed request for RESOURCE, relative to the versioned API root\n" +
			"(e.g. \"user/me/realestate?pagesize=5\"), and print the body unmodified.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Request(cmd.Context(), method, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resp == nil {
				_, err = fmt.Fprintln(out, "null")
				return err
			}
			defer resp.Body.Close()

			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")

	return cmd
}
