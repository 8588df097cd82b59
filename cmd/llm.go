package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded model calls",
}

// withEventStore opens the configured database for the duration of fn.
func withEventStore(cmd *cobra.Command, fn func(store.EventRepo) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s.EventRepo())
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent model calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		limit, _ := f.GetInt("limit")
		purpose, _ := f.GetString("purpose")
		since, _ := f.GetDuration("since")
		asJSON, _ := f.GetBool("json")

		opts := store.QueryOpts{Limit: limit, Purpose: purpose}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}

		var events []store.LLMEventRecord
		err := withEventStore(cmd, func(repo store.EventRepo) error {
			var err error
			events, err = repo.QueryLLMEvents(cmd.Context(), opts)
			return err
		})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if asJSON {
			return printJSON(cmd, events)
		}

		w := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(w, "No model calls recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-5s  %-19s  %-20s  %-28s  %6s  %6s  %7s  %s\n",
			"ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK")
		fmt.Fprintln(w, strings.Repeat("\u2500", 106))
		for _, e := range events {
			mark := "\u2713"
			if !e.Success {
				mark = "\u2717"
			}
			fmt.Fprintf(w, "%-5d  %-19s  %-20s  %-28s  %6d  %6d  %7d  %s\n",
				e.ID, e.Timestamp.Local().Format(time.DateTime),
				truncate(e.Purpose, 20), truncate(e.Model, 28),
				e.InputTokens, e.OutputTokens, e.LatencyMs, mark)
		}
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the prompt and raw output of one model call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q", args[0])
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		var e *store.LLMEventRecord
		err = withEventStore(cmd, func(repo store.EventRepo) error {
			var err error
			e, err = repo.GetLLMEvent(cmd.Context(), id)
			return err
		})
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("event %d not found", id)
		}
		if asJSON {
			return printJSON(cmd, e)
		}

		w := cmd.OutOrStdout()
		fields := [][2]string{
			{"ID", strconv.Itoa(e.ID)},
			{"Time", e.Timestamp.Local().Format(time.DateTime)},
			{"Provider", e.Provider},
			{"Model", e.Model},
			{"Purpose", e.Purpose},
			{"Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)},
			{"Latency", fmt.Sprintf("%dms", e.LatencyMs)},
			{"Success", strconv.FormatBool(e.Success)},
		}
		if cost := llm.LookupCost(e.Model); cost != nil {
			fields = append(fields, [2]string{"Cost", formatCost(cost.Cost(e.InputTokens, e.OutputTokens))})
		}
		if e.ErrorMessage != "" {
			fields = append(fields, [2]string{"Error", e.ErrorMessage})
		}
		for _, kv := range fields {
			fmt.Fprintf(w, "%-10s %s\n", kv[0]+":", kv[1])
		}

		printSection(w, "REQUEST", e.RequestBody)
		printSection(w, "RESPONSE", e.ResponseBody)
		return nil
	},
}

func printSection(w io.Writer, title, body string) {
	sep := strings.Repeat("\u2500", 60)
	if body == "" {
		body = "(not captured)"
	}
	fmt.Fprintf(w, "\n%s\n%s\n%s\n%s\n", sep, title, sep, body)
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage by purpose and estimated cost by model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEventStore(cmd, func(repo store.EventRepo) error {
			return printUsage(cmd, repo)
		})
	},
}

type modelCost struct {
	store.ModelUsage
	CostUSD *float64 `json:"cost_usd,omitempty"`
}

type usageReport struct {
	Purposes []store.PurposeUsage `json:"purposes"`
	Models   []modelCost          `json:"models"`
	TotalUSD float64              `json:"total_usd"`
	Unpriced []string             `json:"unpriced,omitempty"`
}

func buildUsageReport(cmd *cobra.Command, repo store.EventRepo) (*usageReport, error) {
	purposes, err := repo.LLMUsageByPurpose(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	models, err := repo.LLMUsageByModel(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("query model usage: %w", err)
	}

	rep := &usageReport{Purposes: purposes}
	for _, mu := range models {
		mc := modelCost{ModelUsage: mu}
		if price := llm.LookupCost(mu.Model); price != nil {
			usd := price.Cost(mu.InputTokens, mu.OutputTokens)
			mc.CostUSD = &usd
			rep.TotalUSD += usd
		} else {
			rep.Unpriced = append(rep.Unpriced, mu.Model)
		}
		rep.Models = append(rep.Models, mc)
	}
	return rep, nil
}

func printUsage(cmd *cobra.Command, repo store.EventRepo) error {
	rep, err := buildUsageReport(cmd, repo)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, rep)
	}

	w := cmd.OutOrStdout()
	if len(rep.Purposes) == 0 {
		fmt.Fprintln(w, "No model usage recorded yet.")
		return nil
	}

	rule := strings.Repeat("\u2500", 72)
	fmt.Fprintf(w, "By purpose\n%s\n", rule)
	fmt.Fprintf(w, "%-20s  %6s  %10s  %10s  %8s\n", "Purpose", "Calls", "In", "Out", "Avg ms")
	var calls, in, out int
	for _, pu := range rep.Purposes {
		fmt.Fprintf(w, "%-20s  %6d  %10d  %10d  %8d\n",
			truncate(pu.Purpose, 20), pu.Calls, pu.InputTokens, pu.OutputTokens, pu.AvgLatencyMs)
		calls += pu.Calls
		in += pu.InputTokens
		out += pu.OutputTokens
	}
	fmt.Fprintf(w, "%s\n%-20s  %6d  %10d  %10d\n", rule, "all", calls, in, out)

	fmt.Fprintf(w, "\nBy model (USD)\n%s\n", rule)
	for _, mc := range rep.Models {
		cost := "?"
		if mc.CostUSD != nil {
			cost = formatCost(*mc.CostUSD)
		}
		fmt.Fprintf(w, "%-32s  %6d calls  %10s\n", truncate(mc.Model, 32), mc.Calls, cost)
	}
	total := formatCost(rep.TotalUSD)
	if len(rep.Unpriced) > 0 {
		total += " (excludes " + strings.Join(rep.Unpriced, ", ") + ")"
	}
	fmt.Fprintf(w, "%s\nestimated total %s\n", rule, total)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. course-detail, quiz, grading, transcription)")
	llmListCmd.Flags().Duration("since", 0, "Only show calls made within this window (e.g. 24h)")
	llmListCmd.Flags().Bool("json", false, "Print events as JSON")
	llmViewCmd.Flags().Bool("json", false, "Print the event as JSON")
	llmStatsCmd.Flags().Bool("json", false, "Print the usage report as JSON")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
