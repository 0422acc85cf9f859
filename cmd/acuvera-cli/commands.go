package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/acuvera/internal/app"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/ingest"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			logger := g.logger()
			db, err := app.OpenDB(cmd.Context(), cfg, g.inMemory, logger)
			if err != nil {
				return err
			}
			defer db.Close(logger)
			if err := db.Migrate(cmd.Context(), logger); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func newDBHealthCmd(g *globals) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			logger := g.logger()
			db, err := app.OpenDB(cmd.Context(), cfg, g.inMemory, logger)
			if err != nil {
				return err
			}
			defer db.Close(logger)
			if err := repository.HealthCheck(cmd.Context(), db, timeout, logger); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Printf("DB health: OK (%s)\n", db.Dialect())
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "ping timeout")
	return cmd
}

func newSeedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo organization, users and a completed demo bill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			res, err := a.Seed(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func newUploadCmd(g *globals) *cobra.Command {
	var (
		userID     int64
		skipHidden bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file-or-dir>",
		Short: "Upload a bill, or every supported file under a directory, and analyze it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			user, err := resolveUser(cmd, a, userID, g.inMemory)
			if err != nil {
				return err
			}

			in := ingest.NewInbox(ingest.InboxConfig{PatientID: user.ID}, a.Users, a.Bills, g.logger())
			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if fi.IsDir() {
				results, stats, err := in.IngestDirectory(cmd.Context(), args[0], skipHidden)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"results": results, "stats": stats})
			}
			r, err := in.IngestPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			detail, err := a.Bills.Get(cmd.Context(), user, r.BillID)
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "id of the patient the bill belongs to")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
	return cmd
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <bill-id>",
		Short: "Run analysis for a PENDING bill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			sum, err := a.Orchestrator.Analyze(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
}

func newReanalyzeCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reanalyze <bill-id>",
		Short: "Reset a bill to PENDING and analyze it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			if err := a.Orchestrator.Reanalyze(cmd.Context(), id, force); err != nil {
				return err
			}
			sum, err := a.Orchestrator.Analyze(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard the results of a COMPLETED bill")
	return cmd
}

func newDashboardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <org-id>",
		Short: "Print the provider dashboard of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			d, err := a.Dashboard.ForOrganization(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	var out, from, to string
	cmd := &cobra.Command{
		Use:   "export <org-id>",
		Short: "Write the organization's findings to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fromPtr, err := parseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toPtr, err := parseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			xlsx, err := a.Export.FindingsXLSX(cmd.Context(), id, fromPtr, toPtr)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, xlsx, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(xlsx))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "findings.xlsx", "output file")
	cmd.Flags().StringVar(&from, "from", "", "first analyzed date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last analyzed date, YYYY-MM-DD")
	return cmd
}

// resolveUser defaults to the demo patient on the seeded in-memory store.
func resolveUser(cmd *cobra.Command, a *app.App, id int64, inMemory bool) (*entity.User, error) {
	if id == 0 && inMemory {
		return a.Users.GetByEmail(cmd.Context(), app.DemoPatientEmail)
	}
	if id <= 0 {
		return nil, fmt.Errorf("--user is required")
	}
	return a.Users.GetByID(cmd.Context(), id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
