// Command fintrack-admin manages users, lists transactions and runs
// recurring sweeps by hand against the configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/query"
	"fintrack/internal/scheduler"
	"fintrack/internal/services"
)

const usage = `usage: fintrack-admin <command> [flags]

commands:
  add-user -name NAME -email EMAIL
  list     -user ID [-type all|credit|expense] [-frequency DAYS|custom] [-start DATE] [-end DATE]
  sweep    run one recurring sweep now; a server with RECURRING_ENABLED sweeps
           on its own schedule, so do not run this while that sweep is in flight
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentAdmin)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	res := cli.OpenBackend(ctx, logger, cfg)
	svc, err := cli.BuildServices(cfg, res)
	if err != nil {
		cli.RunCleanup(logger, res.Cleanup)
		logger.Error("Failed to build services", "error", err)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "add-user":
		err = addUser(ctx, svc, args, os.Stdout)
	case "list":
		err = list(ctx, svc, args, os.Stdout)
	case "sweep":
		var sched *scheduler.Scheduler
		if sched, err = cli.NewScheduler(cfg, svc.Recurring, logger); err == nil {
			err = sweep(ctx, sched, os.Stdout)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		cli.RunCleanup(logger, res.Cleanup)
		os.Exit(2)
	}

	cli.RunCleanup(logger, res.Cleanup)
	if err != nil {
		logger.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func addUser(ctx context.Context, svc *cli.Services, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-user", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := svc.Transactions.CreateUser(ctx, *name, *email)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created user %s (%s <%s>)\n", u.ID, u.Name, u.Email)
	return nil
}

func list(ctx context.Context, svc *cli.Services, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var req query.Request
	fs.StringVar(&req.OwnerID, "user", "", "owner id")
	fs.StringVar(&req.Type, "type", query.TypeAll, "credit, expense or all")
	fs.StringVar(&req.Frequency, "frequency", "30", "days back from now, or custom")
	fs.StringVar(&req.StartDate, "start", "", "custom window start (2006-01-02)")
	fs.StringVar(&req.EndDate, "end", "", "custom window end (2006-01-02)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	txs, err := svc.Transactions.List(ctx, req)
	if err != nil {
		return err
	}
	renderTransactions(out, txs)
	return nil
}

type trigger interface {
	Trigger(ctx context.Context) (services.SweepResult, error)
}

// sweep goes through the scheduler so overlapping runs in this process are
// refused with core.ErrSchedulerOverlap.
func sweep(ctx context.Context, t trigger, out io.Writer) error {
	res, err := t.Trigger(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "templates=%d created=%d failed=%d\n", res.Templates, res.Created, res.Failed)
	return nil
}
