package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"librarydesk/internal/util"
	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/config"
	"librarydesk/services/desk/internal/desk"
	"librarydesk/services/desk/internal/gate"
	"librarydesk/services/desk/internal/libraryclient"
)

type cli struct {
	configPath string
	cfg        config.FileConfig
	logger     *slog.Logger
	in         *bufio.Scanner
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{in: bufio.NewScanner(os.Stdin), out: os.Stdout}
	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "desk",
		Short:         "Library circulation desk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = util.InitLoggerTo(os.Stderr, cfg.LogLevel)
			cmd.SetContext(util.ContextWithLogger(cmd.Context(), c.logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runShell(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to desk.yaml (default $DESK_CONFIG or ./desk.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive desk session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runShell(cmd.Context())
			},
		},
		c.searchCmd(),
		c.issueCmd(),
		c.returnCmd(),
		c.hashPasswordCmd(),
	)
	return root
}

func (c *cli) searchCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog by title or author",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			books, err := d.Search(cmd.Context(), filter.Query{Text: strings.Join(args, " "), Field: filter.ParseField(field)})
			if err != nil {
				return err
			}
			renderBooks(c.out, books, d.State().Catalog)
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "any", "title, author or any")
	return cmd
}

func (c *cli) issueCmd() *cobra.Command {
	var username string
	var days int
	cmd := &cobra.Command{
		Use:   "issue <bookId> <memberId>",
		Short: "Issue a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.adminDesk(cmd.Context(), username)
			if err != nil {
				return err
			}
			d.SetIssueForm(desk.IssueForm{BookID: args[0], MemberID: args[1], Days: days})
			_, err = d.Issue(cmd.Context())
			renderNotice(c.out, d.State().Notice)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username (default from config)")
	cmd.Flags().IntVar(&days, "days", 0, "loan length in days (default from the service)")
	return cmd
}

func (c *cli) returnCmd() *cobra.Command {
	var username, memberID string
	cmd := &cobra.Command{
		Use:   "return <bookId>",
		Short: "Return a book and report the fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.adminDesk(cmd.Context(), username)
			if err != nil {
				return err
			}
			d.SetReturnForm(desk.ReturnForm{BookID: args[0], MemberID: memberID})
			_, err = d.Return(cmd.Context())
			renderNotice(c.out, d.State().Notice)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username (default from config)")
	cmd.Flags().StringVar(&memberID, "member", "", "only close a loan held by this member")
	return cmd
}

func (c *cli) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for adminPassword",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			hash, err := gate.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, hash)
			return nil
		},
	}
}

// connect negotiates the backend version and builds a desk around it.
func (c *cli) connect(ctx context.Context) (*desk.Desk, error) {
	client := libraryclient.NewClient(c.cfg.APIBaseURL, c.cfg.RequestTimeout)
	version, err := client.Negotiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.cfg.APIBaseURL, err)
	}
	util.LoggerFromContext(ctx).Debug("desk connected", "base_url", c.cfg.APIBaseURL, "version", version.String())
	return desk.New(desk.Config{
		Library:  client,
		Gate:     gate.New(c.cfg.AdminUsername, c.cfg.AdminPassword),
		Currency: c.cfg.Currency,
		PageSize: c.cfg.PageSize,
	}), nil
}

func (c *cli) adminDesk(ctx context.Context, username string) (*desk.Desk, error) {
	d, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	if username == "" {
		username = c.cfg.AdminUsername
	}
	password, err := c.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if err := d.Login(ctx, username, password); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *cli) runShell(ctx context.Context) error {
	d, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if err := d.Refresh(ctx); err != nil {
		fmt.Fprintf(c.out, "Warning: %s\n", d.State().Notice.Text)
	}
	sh := &shell{
		desk:         d,
		in:           c.in,
		out:          c.out,
		adminUser:    c.cfg.AdminUsername,
		readPassword: c.readPassword,
	}
	return sh.run(ctx)
}

// readPassword masks input on a terminal and falls back to a plain line otherwise.
func (c *cli) readPassword(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}
