package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Read and write persisted application state",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a state value",
		Args:  cobra.ExactArgs(1),
		Run:   runStateGet,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a state value",
		Args:  cobra.ExactArgs(2),
		Run:   runStateSet,
	}
	setCmd.Flags().String("desc", "", "Optional description")

	rmCmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a state value",
		Args:  cobra.ExactArgs(1),
		Run:   runStateRm,
	}

	stateCmd.AddCommand(getCmd, setCmd, rmCmd)
	RootCmd.AddCommand(stateCmd)
}

func runStateGet(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	v := mgr.GetAppSetting(cmd.Context(), args[0], nil)
	if v == nil {
		exitErr("get state", fmt.Errorf("key not found: %s", args[0]))
	}

	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

func runStateSet(cmd *cobra.Command, args []string) {
	desc, _ := cmd.Flags().GetString("desc")

	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	if err := mgr.SetAppSetting(cmd.Context(), args[0], parseValue(args[1]), desc); err != nil {
		exitErr("set state", err)
	}
	fmt.Printf("set %s\n", args[0])
}

func runStateRm(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	deleted, err := mgr.DeleteAppSetting(cmd.Context(), args[0])
	if err != nil {
		exitErr("delete state", err)
	}
	if !deleted {
		exitErr("delete state", fmt.Errorf("key not found: %s", args[0]))
	}
	fmt.Printf("deleted %s\n", args[0])
}

// parseValue infers the most specific type for a literal so it round-trips
// through the typed state store: bool, then int, then float, else string.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
