// Command finanzas-report prints credit analytics for the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"finanzas/internal/analytics"
	"finanzas/internal/config"
	"finanzas/internal/core"
	"finanzas/internal/log"
	"finanzas/internal/storage"
)

func main() {
	_ = godotenv.Load()

	report := flag.String("report", "summary", "report to print: summary, deep or spending")
	flag.Parse()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentAnalytics,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	service := analytics.NewService(repo)
	version := time.Now().Format(time.RFC3339)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch *report {
	case "summary":
		err = printSummary(ctx, w, service, version)
	case "deep":
		err = printDeepAnalysis(ctx, w, service, version)
	case "spending":
		err = printSpending(ctx, w, repo)
	default:
		fmt.Fprintf(os.Stderr, "unknown report %q\n", *report)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Report failed", "report", *report, log.FieldError, err)
		os.Exit(1)
	}
}

func printSummary(ctx context.Context, w *tabwriter.Writer, service *analytics.Service, version string) error {
	summary, err := service.Summary(ctx, version)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Deuda total:\t%s\n", summary.TotalDebt)
	fmt.Fprintf(w, "Intereses:\t%s\n", summary.TotalInterest)
	fmt.Fprintf(w, "Cupo total:\t%s\n", summary.TotalCreditLimit)
	fmt.Fprintf(w, "Disponible:\t%s\n", summary.TotalAvailable)
	fmt.Fprintf(w, "Pagos recibidos:\t%s\n", summary.PaymentsReceived)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Tarjeta\tUsado\tCupo\tDisponible\tUso %")
	for _, usage := range summary.Usage {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\n",
			usage.Name, usage.Used, usage.Limit, usage.Available, usage.Percentage)
	}
	return nil
}

func printDeepAnalysis(ctx context.Context, w *tabwriter.Writer, service *analytics.Service, version string) error {
	analysis, err := service.DeepAnalysis(ctx, version)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Compras:\t%d (total %s)\n", analysis.TotalPurchases, analysis.TotalSpent)
	fmt.Fprintf(w, "Pagos:\t%d (total %s)\n", analysis.TotalPayments, analysis.TotalPaid)
	fmt.Fprintf(w, "Intereses generados:\t%s\n", analysis.TotalInterestGenerated)
	fmt.Fprintf(w, "Cuotas promedio:\t%s\n", analysis.AvgInstallments)
	fmt.Fprintf(w, "Tasa ponderada:\t%s%%\n", analysis.WeightedInterestRate)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Mes\tCompras\tIntereses")
	for _, month := range analysis.PurchasesByMonth {
		interest := "0"
		for _, m := range analysis.InterestByMonth {
			if m.Month == month.Month {
				interest = m.Amount.String()
				break
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", month.Month, month.Amount, interest)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Categoría\tGasto")
	for _, cat := range analysis.CategorySpending {
		fmt.Fprintf(w, "%s\t%s\n", cat.Category, cat.Amount)
	}
	return nil
}

func printSpending(ctx context.Context, w *tabwriter.Writer, repo *storage.SQLiteRepository) error {
	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	txs, err := repo.ListTransactions(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Mes\tNeto")
	for _, month := range analytics.MonthlyNetBalance(txs, accounts) {
		fmt.Fprintf(w, "%s\t%s\n", month.Month, month.Amount)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Categoría\tGasto")
	totals := analytics.CategoryTotals(txs, core.Expense, accounts)
	categories := make([]string, 0, len(totals))
	for category := range totals {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(w, "%s\t%s\n", category, totals[category])
	}
	return nil
}
