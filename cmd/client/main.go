// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kvcli put mykey "hello world"        --server http://localhost:8080
//	kvcli get mykey                      --server http://localhost:8080 --mode safe
//	kvcli delete mykey                   --server http://localhost:8080
//	kvcli siblings mykey                 --server http://localhost:8080
//	kvcli merkle --start 0 --end 1000    --server http://localhost:8080
//	kvcli health                         --server http://localhost:8080
package main

import (
	"context"
	"distributed-kvstore/internal/client"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
	authToken  string
)

func newClient() *client.Client {
	return client.New(serverAddr, timeout).WithAuthToken(authToken)
}

func main() {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "CLI client for the distributed KV store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "KV store server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")
	root.PersistentFlags().StringVarP(&authToken, "token", "t",
		"", "Bearer token for the Client API (empty when auth is disabled)")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), siblingsCmd(), merkleCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── put ──────────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Put(context.Background(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	var mode string
	var deadlineMillis int64
	var maxBudgetedFraction float64

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hint *client.ConsistencyHint
			if mode != "" {
				hint = &client.ConsistencyHint{
					Mode:                mode,
					DeadlineMillis:      deadlineMillis,
					MaxBudgetedFraction: maxBudgetedFraction,
				}
			}
			result, err := newClient().Get(context.Background(), args[0], hint)
			if err != nil {
				return err
			}
			if !result.Found {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			value, err := result.Value.Decoded()
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", value)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "SLO hint: safe or budgeted (empty omits the hint)")
	cmd.Flags().Int64Var(&deadlineMillis, "deadline-millis", 0, "deadline for the safe/budgeted hint")
	cmd.Flags().Float64Var(&maxBudgetedFraction, "max-budgeted-fraction", 0, "max fraction of recent reads allowed to be served budgeted (staleness budget)")
	return cmd
}

// ─── delete ───────────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient().Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

// ─── siblings ─────────────────────────────────────────────────────────────────

func siblingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "siblings <key>",
		Short: "Show the raw, unreconciled sibling set for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().DebugSiblings(context.Background(), args[0])
			if err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
}

// ─── merkle ───────────────────────────────────────────────────────────────────

func merkleCmd() *cobra.Command {
	var start, end uint64

	cmd := &cobra.Command{
		Use:   "merkle",
		Short: "Fetch this node's Merkle digest summary over a token range",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().MerkleSnapshot(context.Background(), start, end)
			if err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&start, "start", 0, "range start token (0, 0 means the full ring)")
	cmd.Flags().Uint64Var(&end, "end", 0, "range end token (0, 0 means the full ring)")
	return cmd
}

// ─── health ───────────────────────────────────────────────────────────────────

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check node liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().Health(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
