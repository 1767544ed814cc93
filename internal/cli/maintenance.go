package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and database statistics",
		Run:   runStats,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache freshness and sync timestamps",
		Run:   runStatus,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete conversations and unused models older than a cutoff",
		Run:   runCleanup,
	}
	cleanupCmd.Flags().Int("days", 30, "Keep data newer than this many days")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all cached models and conversation history",
		Run:   runReset,
	}
	resetCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	RootCmd.AddCommand(statsCmd, statusCmd, cleanupCmd, resetCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	stats, err := mgr.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}

func runStatus(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	b, _ := json.MarshalIndent(mgr.SyncStatus(cmd.Context()), "", "  ")
	fmt.Println(string(b))
}

func runCleanup(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	stats, err := mgr.CleanupOldData(cmd.Context(), days)
	if err != nil {
		exitErr("cleanup", err)
	}
	fmt.Printf("removed %d conversations, %d models\n", stats.Conversations, stats.Models)
}

func runReset(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Print("This wipes all cached models and conversation history. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			fmt.Println("aborted")
			return
		}
	}

	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	if err := mgr.ResetCache(cmd.Context()); err != nil {
		exitErr("reset", err)
	}
	fmt.Println("cache reset")
}
