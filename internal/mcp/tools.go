package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/transactioneer/internal/storage"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// RegisterTools registers all submission engine tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerEnqueue(s, client)
	registerStop(s, client)
	registerRuns(s, client)
	registerRunDetail(s, client)
	registerRunSubmissions(s, client)
	registerTxLookup(s, client)
	registerDeleteRun(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_status",
		gomcp.WithDescription("Get current submission engine status: state, attempted/succeeded/failed counts, conflict retries, queue depth, submission rate."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		stats, err := client.Status()
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Submission engine unreachable: %v\n\nIs the service running?", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(stats)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_health",
		gomcp.WithDescription("Quick health check for the submission engine. Probes every configured RPC endpoint."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		report, err := client.Ready()
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Submission engine unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(report)), nil
	})
}

func registerEnqueue(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_enqueue",
		gomcp.WithDescription("Enqueue work items for submission. This is a MUTATING operation. Kinds: contract_call (default), transfer."),
		gomcp.WithNumber("count",
			gomcp.Required(),
			gomcp.Description("Number of identical work items to enqueue (1-100000)"),
		),
		gomcp.WithString("kind",
			gomcp.Description("Payload kind: contract_call (default) or transfer"),
		),
		gomcp.WithString("to",
			gomcp.Description("Recipient address (required for transfers)"),
		),
		gomcp.WithString("value",
			gomcp.Description("Transfer amount in wei as a decimal string"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		count := req.GetInt("count", 0)
		if count <= 0 {
			return gomcp.NewToolResultError("count must be positive"), nil
		}

		item := ptypes.WorkItem{
			Kind:  ptypes.PayloadKind(req.GetString("kind", "")),
			To:    req.GetString("to", ""),
			Value: req.GetString("value", ""),
		}
		items := make([]ptypes.WorkItem, count)
		for i := range items {
			items[i] = item
		}

		result, err := client.EnqueueBatch(items)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Enqueue failed: %v", err)), nil
		}

		lines := joinLines(
			section("Items Enqueued"),
			kv("Requested", formatNumber(count)),
			kv("Accepted", formatNumber(result.Accepted)),
			kv("Queue Depth", formatNumber(result.QueueDepth)),
		)
		if result.Error != "" {
			lines += "\n" + kv("Note", result.Error)
		}
		return gomcp.NewToolResultText(lines), nil
	})
}

func registerStop(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_stop",
		gomcp.WithDescription("Stop the submission engine. Already-queued items drain before workers exit. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if err := client.Stop(); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Stop failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Engine Stopping"),
			"The queue is closed. Remaining items will drain before the run completes.",
		)), nil
	})
}

func registerRuns(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_runs",
		gomcp.WithDescription("List completed engine runs with summary counters (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		page, err := client.ListRuns(req.GetInt("limit", 10), req.GetInt("offset", 0))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Runs listing failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRuns(page)), nil
	})
}

func registerRunDetail(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_run_detail",
		gomcp.WithDescription("Get the summary for a specific engine run by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		run, err := client.GetRun(id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(run)), nil
	})
}

func registerRunSubmissions(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_run_submissions",
		gomcp.WithDescription("Get submission records for a specific engine run (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max submissions to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		page, err := client.RunSubmissions(id, req.GetInt("limit", 50), req.GetInt("offset", 0))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run submissions failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatSubmissions(page)), nil
	})
}

func registerTxLookup(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_tx_lookup",
		gomcp.WithDescription("Look up a recorded submission by transaction hash."),
		gomcp.WithString("hash",
			gomcp.Required(),
			gomcp.Description("Transaction hash (0x-prefixed)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		hash, err := req.RequireString("hash")
		if err != nil {
			return gomcp.NewToolResultError("hash is required"), nil
		}
		rec, err := client.LookupTx(hash)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Submission "+hash),
			kv("Run ID", formatNumber(rec.RunID)),
			kv("Account", formatNumber(rec.AccountIndex)),
			kv("Nonce", formatNumber(rec.Nonce)),
			kv("Status", string(rec.Status)),
			kv("Reason", string(rec.Reason)),
			kv("Attempts", formatNumber(rec.Attempts)),
		)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txsubmit_delete_run",
		gomcp.WithDescription("Delete an engine run and its submission records. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID to delete"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		if err := client.DeleteRun(id); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	})
}

// Response formatting functions

func formatStatus(stats *ptypes.Stats) string {
	lines := joinLines(
		section("Submission Engine Status"),
		kv("State", string(stats.State)),
		kv("Attempted", formatNumber(stats.Attempted)),
		kv("Succeeded", formatNumber(stats.Succeeded)),
		kv("Failed", formatNumber(stats.Failed)),
		kv("Conflict Retries", formatNumber(stats.ConflictRetries)),
		kv("Reconciliations", formatNumber(stats.Reconciliations)),
		kv("Queue Depth", formatNumber(stats.QueueDepth)),
		kv("Rate", fmt.Sprintf("%.0f tx/s", stats.Rate)),
		kv("Elapsed", fmt.Sprintf("%.1fs", stats.Elapsed)),
	)

	if stats.Attempted > 0 {
		lines += "\n" + kv("Success Rate", formatPct(100*float64(stats.Succeeded)/float64(stats.Attempted)))
	}

	if len(stats.FailedByReason) > 0 {
		lines += "\n\n" + section("Failures by Reason")
		for reason, count := range stats.FailedByReason {
			lines += "\n" + kv(string(reason), formatNumber(count))
		}
	}

	return lines
}

func formatHealth(report *ReadyReport) string {
	state := "READY"
	if !report.Ready {
		state = "NOT READY"
	}

	lines := section("Submission Engine Health: " + state)
	for _, check := range report.Checks {
		line := fmt.Sprintf("  %-30s %s (%dms)", check.URL, check.Status, check.LatencyMs)
		if check.Error != "" {
			line += " - " + check.Error
		}
		lines += "\n" + line
	}

	return lines
}

func formatRuns(page *storage.PaginatedRuns) string {
	lines := joinLines(
		section("Engine Runs"),
		kv("Total Runs", formatNumber(page.Total)),
		"",
	)

	if len(page.Runs) == 0 {
		lines += "No runs found."
		return lines
	}

	for _, run := range page.Runs {
		lines += fmt.Sprintf("### Run %d\n", run.ID)
		lines += joinLines(
			kv("Attempted", formatNumber(run.Attempted)),
			kv("Succeeded", formatNumber(run.Succeeded)),
			kv("Failed", formatNumber(run.Failed)),
			kv("Avg Rate", fmt.Sprintf("%.0f tx/s", run.AvgRate)),
			kv("Started", formatTimestamp(&run.StartedAt)),
		)
		lines += "\n\n"
	}

	return lines
}

func formatRunDetail(run *ptypes.RunSummary) string {
	lines := joinLines(
		section(fmt.Sprintf("Run %d", run.ID)),
		kv("Started", formatTimestamp(&run.StartedAt)),
		kv("Finished", formatTimestamp(run.FinishedAt)),
		kv("Attempted", formatNumber(run.Attempted)),
		kv("Succeeded", formatNumber(run.Succeeded)),
		kv("Failed", formatNumber(run.Failed)),
		kv("Avg Rate", fmt.Sprintf("%.0f tx/s", run.AvgRate)),
		kv("Endpoints", formatNumber(run.Endpoints)),
		kv("Accounts", formatNumber(run.Accounts)),
	)

	if run.Attempted > 0 {
		lines += "\n" + kv("Success Rate", formatPct(100*float64(run.Succeeded)/float64(run.Attempted)))
	}

	return lines
}

func formatSubmissions(page *storage.PaginatedSubmissions) string {
	lines := joinLines(
		section("Submission Records"),
		kv("Total", formatNumber(page.Total)),
		"",
	)

	if len(page.Submissions) == 0 {
		lines += "No submissions found."
		return lines
	}

	for i, sub := range page.Submissions {
		if i >= 20 {
			lines += fmt.Sprintf("\n... and %d more", len(page.Submissions)-20)
			break
		}
		hash := sub.TxHash
		if len(hash) > 18 {
			hash = hash[:18] + "..."
		}
		if hash == "" {
			hash = "(no hash)"
		}
		status := string(sub.Status)
		if sub.Reason != "" {
			status += "/" + string(sub.Reason)
		}
		lines += fmt.Sprintf("  [%d] acct=%d nonce=%d %s  %s\n",
			i, sub.AccountIndex, sub.Nonce, hash, status)
	}

	return lines
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
