package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/report"
	"github.com/felixgeelhaar/recall/internal/session"
)

var (
	listLimit int
	showHTML  bool
	showOut   string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List past sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sessions, err := s.ListSessions(listLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "STARTED", "STATUS", "RECORDS", "VISION")
		for _, sess := range sessions {
			records, err := s.ListRecords(sess.ID)
			if err != nil {
				return err
			}
			t.Row(sess.ID, session.Stamp(sess.CreatedAt), sess.Status, strconv.Itoa(len(records)), sess.Metadata["vision"])
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Render a session report as Markdown or HTML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		sess, err := findSession(s, id)
		if err != nil {
			return err
		}
		records, err := s.ListRecords(sess.ID)
		if err != nil {
			return err
		}
		snap := session.NewSnapshot(sess.ID, records)

		out := report.Markdown(sess, snap)
		if showHTML {
			if out, err = report.HTML(sess, snap); err != nil {
				return err
			}
		}

		if showOut == "" {
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}
		if err := os.WriteFile(showOut, []byte(out), 0600); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", showOut)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(listCmd)
	sessionsCmd.AddCommand(showCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	showCmd.Flags().BoolVar(&showHTML, "html", false, "Render HTML instead of Markdown")
	showCmd.Flags().StringVarP(&showOut, "out", "o", "", "Write the report to a file (place it in the capture dir so images resolve)")
}
