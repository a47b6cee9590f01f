// Package cli is a thin cobra command tree over the admin write surface,
// for operators to seed URLs, scale stages, restart workers, clear queues,
// and check status without curling the HTTP API directly. Grounded on the
// rest of the retrieval pack's cobra-based CLI usage (the teacher has no
// CLI of its own).
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	adminAddr string
	client    = &http.Client{Timeout: 10 * time.Second}
)

// NewRootCommand builds the operator CLI's command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Operate the site-search ingestion pipeline",
	}
	root.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://localhost:8080", "admin API base address")

	root.AddCommand(newSeedCmd(), newScaleCmd(), newRestartCmd(), newClearQueueCmd(), newStatusCmd(), newToggleMonitorCmd())
	return root
}

func newSeedCmd() *cobra.Command {
	var queue, siteID string
	cmd := &cobra.Command{
		Use:   "seed [url]",
		Short: "Seed a URL into the url queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"url": args[0], "site_id": siteID})
			path := "/admin/seed"
			if queue != "" {
				path += "?queue=" + queue
			}
			return post(cmd, path, body)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "target queue name (default: url)")
	cmd.Flags().StringVar(&siteID, "site-id", "", "site identifier")
	return cmd
}

func newScaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale [stage] [count]",
		Short: "Scale a stage's worker pool to count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var count int
			if _, err := fmt.Sscanf(args[1], "%d", &count); err != nil {
				return fmt.Errorf("invalid count %q: %w", args[1], err)
			}
			body, _ := json.Marshal(map[string]int{"target_count": count})
			return post(cmd, fmt.Sprintf("/admin/stages/%s/scale", args[0]), body)
		},
	}
	return cmd
}

func newRestartCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "restart [worker-id]",
		Short: "Restart a worker process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/admin/workers/%s/restart", args[0])
			if stage != "" {
				path += "?stage=" + stage
			}
			return post(cmd, path, nil)
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage the worker belongs to")
	return cmd
}

func newClearQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-queue [queue]",
		Short: "Clear a queue's pending/completed/failed state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, fmt.Sprintf("/admin/queues/%s/clear", args[0]), nil)
		},
	}
}

func newToggleMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-monitor",
		Short: "Toggle the Queue Monitor on or off",
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, "/admin/monitor/toggle", nil)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current pipeline status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(adminAddr + "/admin/status")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printBody(cmd, resp.Body)
		},
	}
}

func post(cmd *cobra.Command, path string, body []byte) error {
	resp, err := client.Post(adminAddr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(cmd, resp.Body)
}

func printBody(cmd *cobra.Command, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		cmd.Println(pretty.String())
		return nil
	}
	cmd.Println(string(data))
	return nil
}
