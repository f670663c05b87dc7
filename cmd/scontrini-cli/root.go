package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"scontrini/internal/backend"
	"scontrini/internal/cli"
	"scontrini/internal/config"
	"scontrini/internal/llm"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
)

// app holds what the subcommands share. It is filled by the root
// command's PersistentPreRunE and released by execute.
type app struct {
	logger     *slog.Logger
	store      *backend.BackendResult
	model      llm.Client
	expenses   *services.ExpenseService
	categories *services.CategoryService
	receipts   *services.ReceiptService
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "scontrini-cli",
		Short: "Manage expenses and scan receipts from the terminal",
		Long: `scontrini-cli works on the same store as the web server: list and edit
categories, list expenses for a date range and run the receipt pipeline on
a local file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
	}

	root.AddCommand(categoriesCmd(a))
	root.AddCommand(expensesCmd(a))
	root.AddCommand(receiptCmd(a))
	return root, a
}

// execute runs root and then closes what open acquired, whether or not the
// command failed. Cobra skips post-run hooks after an error.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	cfg := config.Load()
	a.logger = cli.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return err
	}

	res, err := cli.OpenStore(cmd.Context(), a.logger, cfg)
	if err != nil {
		return err
	}
	a.store = res

	model, err := llm.NewClient(cmd.Context(), cli.LLMConfig(cfg))
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}
	a.model = model

	a.expenses = services.NewExpenseService(res.Store, nil)
	a.categories = services.NewCategoryService(res.Store)
	a.receipts = services.NewReceiptService(
		receipt.NewPipeline(receipt.NewLLMExtractor(model)),
		receipt.NewSuggester(model, cfg.SuggestCacheTTL),
		a.categories,
		a.expenses,
		cfg.ReviewTTL,
	)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.model != nil {
		if err := a.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model client: %w", err))
		}
		a.model = nil
	}
	if a.store != nil {
		if err := a.store.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.store = nil
	}
	return errors.Join(errs...)
}
