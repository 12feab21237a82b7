package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shopbot/internal/auditlog"
)

func newReportCmd() *cobra.Command {
	var (
		date    string
		status  string
		keyword string
		limit   int
		top     int
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize or list a day of audited reply outcomes",
		Example: `  shopbot report
  shopbot report --date 2026-10-19 --top 5
  shopbot report --list --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			day := time.Now().UTC()
			if date != "" {
				if day, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
			}

			r := auditlog.NewReader(cc.cfg.Audit.Dir)
			var v any
			if list {
				v, err = r.Read(cmd.Context(), day, auditlog.Filter{Status: status, Keyword: keyword, Limit: limit})
			} else {
				v, err = r.Summarize(cmd.Context(), day, top)
			}
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "UTC day to read, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&list, "list", false, "list outcomes instead of summarizing")
	cmd.Flags().StringVar(&status, "status", "", "with --list, only this status")
	cmd.Flags().StringVar(&keyword, "keyword", "", "with --list, only this keyword")
	cmd.Flags().IntVar(&limit, "limit", 100, "with --list, maximum outcomes")
	cmd.Flags().IntVar(&top, "top", 10, "keywords in the summary")
	return cmd
}
