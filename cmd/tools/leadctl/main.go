// cmd/tools/leadctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rent360-leads/internal/app"
	"rent360-leads/internal/common/config"
	"rent360-leads/internal/common/database"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/observability"
	"rent360-leads/internal/models"
	"rent360-leads/internal/recommendations"
	erec "rent360-leads/internal/workers/leads/expire-recommendations"
	grec "rent360-leads/internal/workers/leads/generate-recommendations"
	"rent360-leads/pkg/registry"
)

// leadService is the part of the recommendation service the CLI drives.
type leadService interface {
	Generate(ctx context.Context, brokerID string) (models.GenerationResult, error)
	List(ctx context.Context, q recommendations.ListQuery) ([]models.LeadRecommendation, models.ListMeta, error)
	ExpireStale(ctx context.Context, retention time.Duration) (models.SweepResult, error)
}

// backend opens the service, returning a cleanup func.
type backend func(ctx context.Context) (leadService, func(), error)

var configPath string

func main() {
	if err := newRootCmd(connect, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func connect(ctx context.Context) (leadService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")

	opts := app.DefaultOptions
	opts.PostgresRetries = 3
	opts.RedisRetries = 1
	opts.RetryDelay = time.Second
	a, err := app.New(ctx, cfg, log, observability.Noop(), opts)
	if err != nil {
		return nil, nil, err
	}
	return a.Service, a.Close, nil
}

func newRootCmd(open backend, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate Rent360 broker lead recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config.yaml (defaults to ./configs)")
	root.SetOut(out)

	root.AddCommand(
		newGenerateCmd(open),
		newListCmd(open),
		newExpireCmd(open),
		newMigrateCmd(),
		newRegistryCmd(),
	)
	return root
}

func newGenerateCmd(open backend) *cobra.Command {
	var brokerID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one scoring pass for a broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokerID = strings.TrimSpace(brokerID)
			if brokerID == "" {
				return fmt.Errorf("--broker is required")
			}
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			res, err := svc.Generate(cmd.Context(), brokerID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&brokerID, "broker", "", "broker user id")
	return cmd
}

func newListCmd(open backend) *cobra.Command {
	var (
		brokerID string
		status   string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a broker's live recommendations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(brokerID) == "" {
				return fmt.Errorf("--broker is required")
			}
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			recs, meta, err := svc.List(cmd.Context(), recommendations.ListQuery{
				BrokerID: brokerID,
				Status:   strings.ToUpper(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"data": recs, "meta": meta})
		},
	}
	cmd.Flags().StringVar(&brokerID, "broker", "", "broker user id")
	cmd.Flags().StringVar(&status, "status", "", "only this status (NEW, VIEWED, CONTACTED, CONVERTED, DISMISSED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (0 uses the configured default)")
	return cmd
}

func newExpireCmd(open backend) *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire lapsed recommendations and purge old terminal rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retentionDays < 0 {
				return fmt.Errorf("--retention-days must not be negative")
			}
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			res, err := svc.ExpireStale(cmd.Context(), time.Duration(retentionDays)*24*time.Hour)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "purge EXPIRED/DISMISSED rows older than this (0 uses the configured default)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			applied, err := database.Migrate(cmd.Context(), pg.GetDB())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"applied": applied})
		},
	}
}

// workerTaskTypes are the job types lead-server opens workers for.
var workerTaskTypes = []string{grec.TaskType, erec.TaskType}

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry",
	}

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that every lead worker is registered with schemas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return err
			}
			if problems := checkRegistry(reg, workerTaskTypes); len(problems) > 0 {
				return fmt.Errorf("registry %s is incomplete:\n  %s", path, strings.Join(problems, "\n  "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry %s: %d activities, all %d workers registered\n",
				path, len(reg.Activities), len(workerTaskTypes))
			return nil
		},
	}
	validate.Flags().StringVar(&path, "path", "configs/activity-registry.json", "path to the registry file")
	cmd.AddCommand(validate)
	return cmd
}

func checkRegistry(reg *registry.ActivityRegistry, taskTypes []string) []string {
	var problems []string
	for _, tt := range taskTypes {
		a, ok := reg.Find(tt)
		if !ok {
			problems = append(problems, tt+": not registered")
			continue
		}
		if len(a.InputSchema) == 0 {
			problems = append(problems, tt+": missing inputSchema")
		}
		if len(a.OutputSchema) == 0 {
			problems = append(problems, tt+": missing outputSchema")
		}
	}
	return problems
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
