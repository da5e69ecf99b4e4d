package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTable creates a table with standard styling.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func row(key string, value interface{}) table.Row {
	return table.Row{text.FgHiCyan.Sprint(key), value}
}

// renderMetrics prints every counter sample gathered from reg.
func renderMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("METRIC"),
		text.FgHiCyan.Sprint("LABELS"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			t.AppendRow(table.Row{mf.GetName(), formatLabels(m.GetLabel()), m.GetCounter().GetValue()})
		}
	}
	t.Render()
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, lp.GetName()+"="+lp.GetValue())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
