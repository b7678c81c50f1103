package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/config"
	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/notifier"
	"github.com/mmeshcher/library-circulation/internal/repository"
	"github.com/mmeshcher/library-circulation/internal/service"
)

type options struct {
	databaseURI     string
	notifierAddress string
	verbose         bool

	openRepository func(dsn string) (service.Repository, error)
	now            func() time.Time
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{
		openRepository: openRepository,
		now:            time.Now,
	})
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Administrative tool for the library circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseEnv()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("database") {
				opts.databaseURI = cfg.DatabaseURI
			}
			if !cmd.Flags().Changed("notifier") {
				opts.notifierAddress = cfg.NotifierAddress
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.databaseURI, "database", "d", "", "database URI (DATABASE_URI)")
	root.PersistentFlags().StringVarP(&opts.notifierAddress, "notifier", "n", "", "notification service address (NOTIFIER_ADDRESS)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log service activity to stderr")

	root.AddCommand(
		newMigrateCmd(opts),
		newRemindersCmd(opts),
		newFineCmd(opts),
	)
	return root
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.databaseURI == "" {
				return errors.New("database URI is required for migrate")
			}
			repo, err := opts.openRepository(opts.databaseURI)
			if err != nil {
				return err
			}
			defer repo.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newRemindersCmd(opts *options) *cobra.Command {
	var (
		kind string
		date string
		send bool
	)

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List borrowings that need a reminder, optionally sending them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if send && (cmd.Flags().Changed("kind") || cmd.Flags().Changed("date")) {
				return errors.New("--kind and --date cannot be combined with --send: it always sends due_soon and overdue reminders as of today")
			}

			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			today, err := parseDay(date, opts.now)
			if err != nil {
				return err
			}

			if send {
				if opts.notifierAddress == "" {
					return errors.New("notifier address is required to send reminders")
				}
				sent, err := svc.DispatchReminders(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d reminders sent\n", sent)
				return nil
			}

			borrowings, err := svc.ReminderCandidates(cmd.Context(), service.ReminderKind(kind), today)
			if err != nil {
				return err
			}
			return printBorrowings(cmd.OutOrStdout(), borrowings, today)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(service.ReminderOverdue), "reminder kind: due_today, due_soon or overdue")
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD, today by default")
	cmd.Flags().BoolVar(&send, "send", false, "send due_soon and overdue reminders as of today through the notifier")
	return cmd
}

func newFineCmd(opts *options) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "fine <borrowing-id>",
		Short: "Compute the late fine of a borrowing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid borrowing id %q", args[0])
			}

			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			day, err := parseDay(asOf, opts.now)
			if err != nil {
				return err
			}

			overdue, days, err := svc.IsOverdue(cmd.Context(), id, day)
			if err != nil {
				return err
			}
			fine, err := svc.ComputeFine(cmd.Context(), id, day)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "borrowing %d as of %s: overdue=%t days=%d fine=%s\n",
				id, day.Format(model.DateLayout), overdue, days, fine.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "date YYYY-MM-DD, today by default")
	return cmd
}

func (o *options) service() (*service.Service, error) {
	repo, err := o.openRepository(o.databaseURI)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if o.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	var n service.Notifier
	if o.notifierAddress != "" {
		n = notifier.NewClient(o.notifierAddress)
	}

	return service.NewService(repo, n, service.WithLogger(logger), service.WithClock(o.now)), nil
}

func parseDay(s string, now func() time.Time) (time.Time, error) {
	if s == "" {
		return model.Today(now), nil
	}
	return model.ParseDate(s)
}

func printBorrowings(w io.Writer, borrowings []model.Borrowing, today time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMEMBER\tBOOK\tDUE\tDAYS OVERDUE\tFINE")
	for _, b := range borrowings {
		_, days := b.Overdue(today)
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%s\n",
			b.ID, b.MemberID, b.BookID, b.DueDate.Format(model.DateLayout), days, b.Fine(today).StringFixed(2))
	}
	return tw.Flush()
}

func openRepository(dsn string) (service.Repository, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
