package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/d361120041/health-log/records"
	"github.com/d361120041/health-log/reports"
	"github.com/d361120041/health-log/session"
	"github.com/d361120041/health-log/settings"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printIdentity(w io.Writer, id *session.Identity, baseURL string) {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID\t%s\n", id.ID)
	fmt.Fprintf(tw, "Email\t%s\n", id.Email)
	fmt.Fprintf(tw, "Role\t%s\n", id.Role)
	fmt.Fprintf(tw, "API\t%s\n", baseURL)
	tw.Flush()
}

func printRecord(w io.Writer, r *records.Record) {
	tw := newTable(w)
	fmt.Fprintf(tw, "date\t%s\n", r.RecordDate)
	for _, k := range sortedKeys(r.FieldValues) {
		fmt.Fprintf(tw, "%s\t%s\n", k, r.FieldValues[k])
	}
	tw.Flush()
}

func printRecords(w io.Writer, list []records.Record) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tVALUES")
	for _, r := range list {
		pairs := make([]string, 0, len(r.FieldValues))
		for _, k := range sortedKeys(r.FieldValues) {
			pairs = append(pairs, k+"="+r.FieldValues[k])
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.RecordDate, strings.Join(pairs, " "))
	}
	tw.Flush()
}

func printFields(w io.Writer, fields []settings.FieldSetting) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tUNIT\tREQUIRED\tACTIVE\tOPTIONS")
	for _, f := range fields {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%t\t%s\n",
			f.SettingID, f.FieldName, f.DataType, f.Unit, f.IsRequired, f.IsActive, f.Options)
	}
	tw.Flush()
}

func printTrend(w io.Writer, points []reports.TrendPoint) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tVALUE")
	for _, p := range points {
		v := "-"
		if p.Value != nil {
			v = *p.Value
		}
		fmt.Fprintf(tw, "%s\t%s\n", p.Date, v)
	}
	tw.Flush()
}

func printNumberReport(w io.Writer, r *reports.NumberReport) {
	printTrend(w, r.TrendData)
	if r.Statistics == nil {
		return
	}
	s := r.Statistics
	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintf(tw, "count\t%d\n", s.Count)
	fmt.Fprintf(tw, "average\t%s\n", floatOr(s.Average))
	fmt.Fprintf(tw, "median\t%s\n", floatOr(s.Median))
	fmt.Fprintf(tw, "min\t%s\n", floatOr(s.Min))
	fmt.Fprintf(tw, "max\t%s\n", floatOr(s.Max))
	fmt.Fprintf(tw, "sum\t%s\n", floatOr(s.Sum))
	fmt.Fprintf(tw, "stddev\t%s\n", floatOr(s.StandardDeviation))
	tw.Flush()
}

func printDistribution(w io.Writer, d *reports.EnumDistribution) {
	tw := newTable(w)
	fmt.Fprintln(tw, "OPTION\tCOUNT\tPERCENT")
	for _, k := range sortedKeys(d.Distribution) {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", k, d.Distribution[k], d.Percentages[k])
	}
	tw.Flush()
}

func printEnumTrend(w io.Writer, t *reports.EnumTrend) {
	tw := newTable(w)
	fmt.Fprintf(tw, "DATE\t%s\n", strings.Join(t.Options, "\t"))
	for _, day := range t.Days() {
		counts := t.TrendData[day]
		row := make([]string, 0, len(t.Options))
		for _, o := range t.Options {
			row = append(row, strconv.FormatInt(counts[o], 10))
		}
		fmt.Fprintf(tw, "%s\t%s\n", day, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func printTextAnalysis(w io.Writer, a *reports.TextAnalysis) {
	tw := newTable(w)
	fmt.Fprintf(tw, "entries\t%d\n", a.TotalCount)
	fmt.Fprintf(tw, "average length\t%s\n", floatOr(a.AverageLength))
	if a.MinLength != nil && a.MaxLength != nil {
		fmt.Fprintf(tw, "length range\t%d-%d\n", *a.MinLength, *a.MaxLength)
	}
	tw.Flush()

	if len(a.KeywordFrequency) > 0 {
		fmt.Fprintln(w, "\nKeywords:")
		keys := sortedKeys(a.KeywordFrequency)
		sort.SliceStable(keys, func(i, j int) bool {
			return a.KeywordFrequency[keys[i]] > a.KeywordFrequency[keys[j]]
		})
		tw = newTable(w)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%d\n", k, a.KeywordFrequency[k])
		}
		tw.Flush()
	}

	if len(a.TimelineData) > 0 {
		fmt.Fprintln(w, "\nTimeline:")
		tw = newTable(w)
		for _, day := range sortedKeys(a.TimelineData) {
			fmt.Fprintf(tw, "  %s\t%s\n", day, a.TimelineData[day])
		}
		tw.Flush()
	}
}

func floatOr(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
