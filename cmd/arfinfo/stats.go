package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricPrefix selects the metrics dumpMetrics prints.
const metricPrefix = "arf_"

// dumpMetrics prints the arf metrics gathered from g, one series per line.
func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, mf := range mfs {
		name := mf.GetName()
		if !strings.HasPrefix(name, metricPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			series := name + labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(tw, "%s\t%s\n", series, formatValue(name, m.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				fmt.Fprintf(tw, "%s\t%s\n", series, formatValue(name, m.GetGauge().GetValue()))
			case dto.MetricType_SUMMARY:
				s := m.GetSummary()
				mean := time.Duration(0)
				if s.GetSampleCount() > 0 {
					mean = time.Duration(s.GetSampleSum() / float64(s.GetSampleCount()) * float64(time.Second))
				}
				fmt.Fprintf(tw, "%s\t%s ops, mean %v\n", series, humanize.Comma(int64(s.GetSampleCount())), mean)
			}
		}
	}
	return tw.Flush()
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValue(name string, v float64) string {
	if strings.Contains(name, "bytes") {
		return humanize.Bytes(uint64(v))
	}
	return humanize.Comma(int64(v))
}
