package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sinhome/internal/storage"
)

// NewLogsCmd 创建 logs 命令
func NewLogsCmd() *cobra.Command {
	var (
		sessionID  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List stored conversation logs",
		Example: `  # Latest exchanges of every session
  sinhome logs

  # Last 5 exchanges of one session
  sinhome logs --session abc --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}

			records, err := db.ListLogs(sessionID, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				if records == nil {
					records = []*storage.LogRecord{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printLogs(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "only this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printLogs(w io.Writer, records []*storage.LogRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No conversation logs.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSESSION\tENDPOINT\tMESSAGE\tRESPONSE")
	for _, rec := range records {
		response := rec.Response
		if rec.Error != "" {
			response = "ERROR: " + rec.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			orDash(rec.SessionID),
			rec.Endpoint,
			truncate(rec.UserMessage, 40),
			truncate(response, 60),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
