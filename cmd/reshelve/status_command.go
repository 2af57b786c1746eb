package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reshelve/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-group migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			groups, err := st.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := st.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No file groups planned yet; run `reshelve plan` first.")
				return nil
			}

			rows := make([][]string, 0, len(groups))
			for _, group := range groups {
				rows = append(rows, groupStatusRow(group))
			}
			fmt.Fprintln(out, renderTable(
				[]string{"GAME", "PLATFORM", "GROUP", "ITEMS", "STATE", "DETAIL"},
				rows,
				map[int]bool{0: true, 3: true},
			))
			parts := make([]string, 0, 5)
			for _, status := range store.AllStatuses() {
				parts = append(parts, fmt.Sprintf("%d %s", statusCount(counts, status), status))
			}
			fmt.Fprintf(out, "Items: %d total, %s\n", counts.Total, strings.Join(parts, ", "))
			return nil
		},
	}
}

func statusCount(counts store.StatusCounts, status store.Status) int {
	switch status {
	case store.StatusPending:
		return counts.Pending
	case store.StatusProcessing:
		return counts.Processing
	case store.StatusCompleted:
		return counts.Completed
	case store.StatusFailed:
		return counts.Failed
	case store.StatusSkipped:
		return counts.Skipped
	default:
		return 0
	}
}

// groupStatusRow rolls a group's item statuses into one table row. The state
// column shows the dominant condition; detail carries the first skip reason
// when one exists.
func groupStatusRow(group *store.FileGroup) []string {
	perStatus := make(map[store.Status]int, len(group.Items))
	detail := ""
	for _, item := range group.Items {
		perStatus[item.Status]++
		if detail == "" && item.SkippedReason != "" {
			detail = item.SkippedReason
		}
	}

	state := "pending"
	switch {
	case perStatus[store.StatusCompleted] == len(group.Items):
		state = "completed"
	case perStatus[store.StatusSkipped] == len(group.Items):
		state = "skipped"
	case perStatus[store.StatusFailed] > 0:
		state = "failed"
	case perStatus[store.StatusProcessing] > 0:
		state = "processing"
	case perStatus[store.StatusSkipped] > 0 || perStatus[store.StatusCompleted] > 0:
		state = "partial"
	}

	return []string{
		strconv.FormatInt(group.CatalogID, 10),
		string(group.Platform),
		group.Key,
		strconv.Itoa(len(group.Items)),
		state,
		detail,
	}
}
