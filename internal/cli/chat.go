package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Inspect conversation history",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Run:   runChatList,
	}
	listCmd.Flags().String("model", "", "Filter by model name")
	listCmd.Flags().IntP("limit", "l", 0, "Limit number of results")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation with its messages",
		Args:  cobra.ExactArgs(1),
		Run:   runChatShow,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		Run:   runChatRm,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversation history",
		Run:   runChatClear,
	}

	chatCmd.AddCommand(listCmd, showCmd, rmCmd, clearCmd)
	RootCmd.AddCommand(chatCmd)
}

func runChatList(cmd *cobra.Command, args []string) {
	modelFilter, _ := cmd.Flags().GetString("model")
	limit, _ := cmd.Flags().GetInt("limit")

	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	conversations, err := mgr.ListConversations(cmd.Context(), modelFilter, limit)
	if err != nil {
		exitErr("list conversations", err)
	}

	b, _ := json.MarshalIndent(conversations, "", "  ")
	fmt.Println(string(b))
}

func runChatShow(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	c, err := mgr.GetConversation(cmd.Context(), args[0])
	if err != nil {
		exitErr("get conversation", err)
	}
	if c == nil {
		exitErr("get conversation", fmt.Errorf("conversation not found: %s", args[0]))
	}

	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println(string(b))
}

func runChatRm(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	deleted, err := mgr.DeleteConversation(cmd.Context(), args[0])
	if err != nil {
		exitErr("delete conversation", err)
	}
	if !deleted {
		exitErr("delete conversation", fmt.Errorf("conversation not found: %s", args[0]))
	}
	fmt.Printf("deleted %s\n", args[0])
}

func runChatClear(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	n, err := mgr.ClearConversations(cmd.Context())
	if err != nil {
		exitErr("clear conversations", err)
	}
	fmt.Printf("deleted %d conversations\n", n)
}
