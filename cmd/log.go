package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asterixix/tecza/internal/audit"
	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	logLimit        int
	logReverse      bool
	logIdentity     string
	logConversation string
	logOperation    string
	logSince        string
	logUntil        string
	logJSON         bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	logCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	logCmd.Flags().StringVar(&logIdentity, "identity", "", "filter by identity")
	logCmd.Flags().StringVar(&logConversation, "conversation", "", "filter by conversation ID")
	logCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	logCmd.Flags().StringVar(&logSince, "since", "", "show entries after date (YYYY-MM-DD)")
	logCmd.Flags().StringVar(&logUntil, "until", "", "show entries before date (YYYY-MM-DD)")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log",
	Long: `Displays the local audit log of key and conversation operations. The log
never contains keys, passphrases or message contents.

Examples:
  tecza log                               # View full log
  tecza log -n 10                         # Last 10 entries
  tecza log --operation grant,migrate     # Filter by operation
  tecza log --conversation <id>           # One conversation
  tecza log --since 2024-01-01 --json     # JSON output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := workflows.Log(context.Background(), workflows.LogOptions{
			Home:         home,
			Limit:        logLimit,
			Reverse:      logReverse,
			Identity:     logIdentity,
			Conversation: logConversation,
			Operations:   logOperation,
			Since:        logSince,
			Until:        logUntil,
		})
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		Logger.Debugf("Read %d entries from %s, %d after filtering", result.TotalEntriesBeforeFilter, result.Path, len(result.Entries))

		if len(result.Entries) == 0 {
			if result.TotalEntriesBeforeFilter == 0 {
				fmt.Println("No audit log entries found.")
			} else {
				fmt.Println("No audit log entries found matching the filters.")
			}
			return nil
		}

		if logJSON {
			return outputLogJSON(result.Entries)
		}
		for _, e := range result.Entries {
			fmt.Printf("%-19s  %-24s  %-19s  %s\n",
				workflows.FormatDateTime(e.Timestamp), e.Identity, e.Operation, workflows.FormatDetails(e))
		}
		return nil
	},
}

func outputLogJSON(entries []audit.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries to JSON: %w", err)
	}
	fmt.Print(ui.EnsureNewline(string(data)))
	return nil
}
