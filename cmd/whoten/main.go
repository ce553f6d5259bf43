package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"whoten/internal/app"
	"whoten/internal/storage"
	logx "whoten/pkg/logx"
)

const stopTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Config may not have loaded, so log through a bootstrap logger.
		logx.NewConsole("info").Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var addr string

	root := &cobra.Command{
		Use:           "whoten",
		Short:         "Shopify sync, market scan and daily report daemon with a PIN-gated dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgPath, addr)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", ".env", "path to a .env or flat YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the schedulers and the web dashboard (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgPath, addr)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	}

	runCmd := &cobra.Command{
		Use:       "run <sync|scan|report>",
		Short:     "Run one task synchronously and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"sync", "scan", "report"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, cfgPath, args[0])
		},
	}

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print persisted task runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return history(cmd, cfgPath, limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to print")

	root.AddCommand(serveCmd, runCmd, historyCmd)
	return root
}

func serve(cfgPath, addr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{ConfigPath: cfgPath, Addr: addr})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return fmt.Errorf("start: %w", err)
	}

	<-a.Done()
	fatal := a.Err()

	sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
	defer scancel()
	if err := a.Stop(sctx); err != nil && fatal == nil {
		return err
	}
	return fatal
}

func runOnce(cmd *cobra.Command, cfgPath, task string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{ConfigPath: cfgPath})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.RunOnce(ctx, task)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok=%t processed=%d items=%d\n", task, res.OK, res.Processed, res.Items)
	if !res.OK {
		return fmt.Errorf("task %s failed; see logs", task)
	}
	return nil
}

func history(cmd *cobra.Command, cfgPath string, limit int) error {
	a, err := app.New(app.Options{ConfigPath: cfgPath})
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.RecentRuns(cmd.Context(), limit)
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("run history is not persisted; set STORAGE_DRIVER to file or sqlite")
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTASK\tTRIGGER\tOK\tDURATION\tDETAIL")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Task, r.Trigger, r.OK,
			r.Duration().Round(time.Millisecond), r.Detail)
	}
	return w.Flush()
}
