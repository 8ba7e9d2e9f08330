package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"fintrack/internal/core"
)

// renderTransactions writes txs as a table with credit, expense and net totals.
func renderTransactions(out io.Writer, txs []core.Transaction) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Date", "Type", "Category", "Title", "Amount", "Recurring"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)

	for _, t := range txs {
		table.Append([]string{
			t.ID,
			t.Date.Format(core.DateLayout),
			string(t.Type),
			t.Category,
			t.Title,
			core.FormatAmount(t.Amount),
			strconv.FormatBool(t.Recurring),
		})
	}

	s := core.Summarize(txs)
	table.SetFooter([]string{"", "", "", "",
		"credits " + core.FormatAmount(s.Credits) + " / expenses " + core.FormatAmount(s.Expenses),
		"net " + core.FormatAmount(s.Net()),
		strconv.Itoa(len(txs)) + " rows",
	})
	table.Render()
}
