// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kdcli put ns mykey "hello world"      --server http://localhost:8080
//	kdcli get ns mykey                    --server http://localhost:8080
//	kdcli at ns mykey 1700000000000000000  --server http://localhost:8080
//	kdcli history ns mykey                --server http://localhost:8080
//	kdcli delete ns mykey                 --server http://localhost:8080
//	kdcli embed ns mykey 0.1,0.2,0.3       --server http://localhost:8080
//	kdcli similar ns 0.1,0.2,0.3 --k 5     --server http://localhost:8080
//	kdcli query ns --field status --op eq --value active
//	kdcli view create myview ns --field status --op eq --value active
//	kdcli cluster nodes                    --server http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"koru-delta/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kdcli",
		Short: "CLI client for a KoruDelta node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "KoruDelta node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), atCmd(), historyCmd(), deleteCmd(),
		embedCmd(), similarCmd(), queryCmd(), viewCmd(), clusterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── put / get / at / history / delete ─────────────────────────────────────────

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <namespace> <key> <value>",
		Short: "Store a value at (namespace, key)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], args[1], []byte(args[2]))
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <namespace> <key>",
		Short: "Retrieve the current value at (namespace, key)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Get(context.Background(), args[0], args[1])
			if err == client.ErrNotFound {
				fmt.Printf("(%s, %s) not found\n", args[0], args[1])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func atCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "at <namespace> <key> <timestamp_ns>",
		Short: "Retrieve the value visible at a point in time",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp_ns %q: %w", args[2], err)
			}
			c := client.New(serverAddr, timeout)
			resp, err := c.GetAt(context.Background(), args[0], args[1], t)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <namespace> <key>",
		Short: "List every version of (namespace, key), newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.History(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <namespace> <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Delete(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── embed / similar ────────────────────────────────────────────────────────

func embedCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "embed <namespace> <key> <comma,separated,floats>",
		Short: "Associate a vector with (namespace, key)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[2])
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			return c.Embed(context.Background(), args[0], args[1], vec, model, nil)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Embedding model name")
	return cmd
}

func similarCmd() *cobra.Command {
	var k, efSearch int
	var threshold float64
	var atNS int64
	cmd := &cobra.Command{
		Use:   "similar <namespace> <comma,separated,floats>",
		Short: "Find the k nearest embedded vectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}
			var at *int64
			if cmd.Flags().Changed("at") {
				at = &atNS
			}
			c := client.New(serverAddr, timeout)
			hits, err := c.Similar(context.Background(), args[0], vec, k, efSearch, threshold, at)
			if err != nil {
				return err
			}
			prettyPrint(hits)
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "Number of results")
	cmd.Flags().IntVar(&efSearch, "ef-search", 100, "Beam search width")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity")
	cmd.Flags().Int64Var(&atNS, "at", 0, "Restrict to embeddings created at or before this unix-nanosecond timestamp")
	return cmd
}

// ─── query / view ─────────────────────────────────────────────────────────────

func queryCmd() *cobra.Command {
	var field, op string
	var value string
	var limit, offset int
	var countOnly bool
	cmd := &cobra.Command{
		Use:   "query <namespace>",
		Short: "Run a single-condition filter query against a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			filter := map[string]any{"Cond": map[string]any{"Field": field, "Op": op, "Value": value}}
			result, err := c.Query(context.Background(), args[0], filter, nil, limit, offset, countOnly)
			if err != nil {
				return err
			}
			fmt.Println(string(result))
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Document field to filter on")
	cmd.Flags().StringVar(&op, "op", "eq", "Comparison operator (eq, ne, gt, gte, lt, lte, in, like, exists, is_null)")
	cmd.Flags().StringVar(&value, "value", "", "Value to compare against")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to return (0 = unbounded)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&countOnly, "count-only", false, "Return only the match count")
	return cmd
}

func viewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View management commands",
	}

	var field, op, value string
	createCmd := &cobra.Command{
		Use:   "create <name> <source_namespace>",
		Short: "Persist a named view definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			view := map[string]any{
				"Name": args[0], "SourceNamespace": args[1],
				"Filter": map[string]any{"Cond": map[string]any{"Field": field, "Op": op, "Value": value}},
			}
			return c.CreateView(context.Background(), view)
		},
	}
	createCmd.Flags().StringVar(&field, "field", "", "Document field to filter on")
	createCmd.Flags().StringVar(&op, "op", "eq", "Comparison operator")
	createCmd.Flags().StringVar(&value, "value", "", "Value to compare against")

	refreshCmd := &cobra.Command{
		Use:   "refresh <name>",
		Short: "Re-execute a view's query and materialize the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			result, err := c.RefreshView(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(string(result))
			return nil
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Return a view's last materialized result set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			result, err := c.QueryView(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(string(result))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a view definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.DeleteView(context.Background(), args[0])
		},
	}

	cmd.AddCommand(createCmd, refreshCmd, queryCmd, deleteCmd)
	return cmd
}

// ─── cluster ──────────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "List all known peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/cluster/nodes")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})

	joinCmd := &cobra.Command{
		Use:   "join <nodeID> <address>",
		Short: "Register a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.JoinCluster(context.Background(), args[0], args[1])
		},
	}

	leaveCmd := &cobra.Command{
		Use:   "leave <nodeID>",
		Short: "Remove a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.LeaveCluster(context.Background(), args[0])
		},
	}

	cmd.AddCommand(joinCmd, leaveCmd)
	return cmd
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
