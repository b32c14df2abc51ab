package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/franksops/trickle/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("196"))
)

// HistoryTable renders journal records as a table, in the order given.
func HistoryTable(records []*store.TransferRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatUint(rec.RequestID, 10),
			rec.DispatchedAt.Local().Format(time.DateTime),
			rec.Kind,
			string(rec.State),
			fmt.Sprintf("%s:%d%s", rec.Host, rec.Port, rec.ResourcePath),
			rec.LocalPath,
			formatBytes(rec.Bytes),
			rec.Error,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "DISPATCHED", "KIND", "STATE", "ENDPOINT", "LOCAL", "BYTES", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(records) && records[row].State == store.StateFailed {
				return failedStyle
			}
			return cellStyle
		})
	return t.Render()
}
