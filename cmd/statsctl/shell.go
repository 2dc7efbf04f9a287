package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/vmstats/config"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/loader"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/registry"
	"github.com/xtxerr/vmstats/internal/storage"
	"github.com/xtxerr/vmstats/internal/storage/archive"
	"github.com/xtxerr/vmstats/internal/storage/query"
	"github.com/xtxerr/vmstats/internal/storage/retention"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/sysinfo"
	"github.com/xtxerr/vmstats/internal/validation"
)

var log = logging.Component("statsctl")

// errExit ends the shell.
var errExit = errors.New("exit")

const timeLayout = "2006-01-02 15:04:05"

type command struct {
	usage string
	help  string
	run   func(s *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":         {"help", "show this help", (*shell).cmdHelp},
		"metrics":      {"metrics", "list metrics and their tiers", (*shell).cmdMetrics},
		"query":        {"query <metric[/tN]> [range] [max-points]", "show samples, picking the tier unless given", (*shell).cmdQuery},
		"summary":      {"summary <metric[/tN]> [range]", "aggregate samples of a range", (*shell).cmdSummary},
		"archive":      {"archive <metric/tN> [range]", "show archived samples of a tier", (*shell).cmdArchive},
		"sql":          {"sql <statement>", "run SQL over archived Parquet files", (*shell).cmdSQL},
		"du":           {"du", "disk usage per metric tier", (*shell).cmdDiskUsage},
		"retention":    {"retention", "show what retention would delete", (*shell).cmdRetention},
		"requirements": {"requirements", "estimated resource requirements", (*shell).cmdRequirements},
		"beans":        {"beans", "list management beans", (*shell).cmdBeans},
		"describe":     {"describe <bean>", "show attributes and operations of a bean", (*shell).cmdDescribe},
		"exit":         {"exit", "leave the shell", (*shell).cmdExit},
	}
}

// rangeHelp describes the range argument.
const rangeHelp = "range: day, week, month, year, all or YYYY-MM-DD|YYYY-MM-DD (default day)"

// shell executes statsctl commands against a loaded registry.
type shell struct {
	cfg     *loader.Config
	reg     *registry.Registry
	svc     *storage.Service
	engine  *query.Engine
	clock   clock.Clock
	out     io.Writer
	maxRows int

	analyzer *archive.Analyzer
}

func newShell(cfg *loader.Config, reg *registry.Registry, svc *storage.Service, clk clock.Clock, out io.Writer) *shell {
	return &shell{
		cfg:     cfg,
		reg:     reg,
		svc:     svc,
		engine:  query.New(reg),
		clock:   clk,
		out:     out,
		maxRows: 50,
	}
}

// restore loads persisted tier samples and completes the rollup windows
// they leave open. Nothing is written back.
func (s *shell) restore(logs []storage.LoadedLog) {
	if records := s.reg.Restore(logs); len(records) > 0 {
		log.Debug("rebuilt rollups", "records", len(records))
	}
}

// Close releases the archive database.
func (s *shell) Close() error {
	if s.analyzer != nil {
		return s.analyzer.Close()
	}
	return nil
}

// Execute runs one command line.
func (s *shell) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(fields[0])
	if name == "quit" {
		name = "exit"
	}
	cmd, ok := commands[name]
	if !ok {
		return errors.NewNotFound("command", fields[0])
	}
	if name == "sql" {
		// The statement keeps its spacing.
		stmt := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		return cmd.run(s, []string{stmt})
	}
	return cmd.run(s, fields[1:])
}

// Complete suggests command names and metric references.
func (s *shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)

	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		var out []prompt.Suggest
		for name, c := range commands {
			out = append(out, prompt.Suggest{Text: name, Description: c.help})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
		return prompt.FilterHasPrefix(out, word, true)
	}

	argIndex := len(fields) - 1
	if strings.HasSuffix(before, " ") {
		argIndex = len(fields)
	}

	switch fields[0] {
	case "query", "summary", "archive":
		switch argIndex {
		case 1:
			var out []prompt.Suggest
			for _, m := range s.reg.All() {
				out = append(out, prompt.Suggest{Text: m.Name, Description: m.Label})
				for i, t := range m.Tiers() {
					ref := validation.SeriesRef{Metric: m.Name, Tier: i}
					out = append(out, prompt.Suggest{Text: ref.String(), Description: t.String()})
				}
			}
			return prompt.FilterHasPrefix(out, word, true)
		case 2:
			var out []prompt.Suggest
			for _, p := range query.Periods() {
				out = append(out, prompt.Suggest{Text: string(p), Description: p.Label()})
			}
			return prompt.FilterHasPrefix(out, word, true)
		}
	case "describe":
		if argIndex != 1 {
			return nil
		}
		beans, err := s.beans()
		if err != nil {
			return nil
		}
		var out []prompt.Suggest
		for _, b := range beans {
			out = append(out, prompt.Suggest{Text: b.name.String(), Description: b.values["Label"]})
		}
		return prompt.FilterHasPrefix(out, word, true)
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func (s *shell) cmdHelp([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	t := s.table("Command", "Description")
	for _, name := range names {
		c := commands[name]
		t.Append([]string{c.usage, c.help})
	}
	t.Render()
	fmt.Fprintln(s.out, rangeHelp)
	return nil
}

func (s *shell) cmdMetrics([]string) error {
	t := s.table("Name", "Label", "Unit", "Tiers", "Samples", "Newest")
	for _, m := range s.reg.All() {
		chain := m.Chain()

		tiers := make([]string, 0, chain.NumTiers())
		var samples int
		var newest int64 = -1
		for i := 0; i < chain.NumTiers(); i++ {
			tiers = append(tiers, chain.Tier(i).String())
			v := chain.View(i)
			samples += v.Len()
			if n, ok := v.Newest(); ok && n.TimestampMs > newest {
				newest = n.TimestampMs
			}
		}

		last := "-"
		if newest >= 0 {
			last = formatTime(newest)
		}
		t.Append([]string{m.Name, m.Label, m.Unit, strings.Join(tiers, " "), strconv.Itoa(samples), last})
	}
	t.Render()
	return nil
}

func (s *shell) cmdQuery(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return usageError("query")
	}
	ref, fromMs, toMs, err := s.parseSeriesArgs(args[0], args[1:])
	if err != nil {
		return err
	}

	maxPoints := s.cfg.Storage.Query.MaxPoints
	if len(args) == 3 {
		if maxPoints, err = strconv.Atoi(args[2]); err != nil {
			return errors.NewInvalidValue("max-points", args[2], "not a number")
		}
	}

	res, err := s.queryRef(ref, fromMs, toMs, maxPoints)
	if err != nil {
		return err
	}

	m, _ := s.reg.Lookup(ref.Metric)
	fmt.Fprintf(s.out, "%s (%s) from tier %d [%s], %d samples",
		m.Label, m.Name, res.Tier, m.Tiers()[res.Tier], len(res.Samples))
	if res.Truncated {
		fmt.Fprint(s.out, ", history incomplete")
	}
	if res.Decimated {
		fmt.Fprint(s.out, ", decimated")
	}
	fmt.Fprintln(s.out)

	s.printSamples(res.Samples, m.Unit)
	return nil
}

func (s *shell) cmdSummary(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("summary")
	}
	ref, fromMs, toMs, err := s.parseSeriesArgs(args[0], args[1:])
	if err != nil {
		return err
	}

	// The summary covers every sample of the answering tier.
	res, err := s.queryRef(ref, fromMs, toMs, config.MaxPointsLimit)
	if err != nil {
		return err
	}

	var accuracy float64
	if s.cfg.Storage.Query.Percentile.Enabled {
		accuracy = s.cfg.Storage.Query.Percentile.Accuracy
	}
	sum := query.Summarize(res.Samples, accuracy)

	m, _ := s.reg.Lookup(ref.Metric)
	if sum.IsEmpty() {
		fmt.Fprintf(s.out, "%s: no samples\n", m.Name)
		return nil
	}

	t := s.table("Field", "Value")
	t.Append([]string{"metric", fmt.Sprintf("%s (%s)", m.Label, m.Name)})
	t.Append([]string{"tier", m.Tiers()[res.Tier].String()})
	t.Append([]string{"from", formatTime(sum.FirstTs)})
	t.Append([]string{"to", formatTime(sum.LastTs)})
	t.Append([]string{"count", strconv.FormatInt(sum.Count, 10)})
	t.Append([]string{"min", formatValue(sum.Min, m.Unit)})
	t.Append([]string{"mean", formatValue(sum.Avg, m.Unit)})
	t.Append([]string{"max", formatValue(sum.Max, m.Unit)})
	if sum.HasPercentiles() {
		t.Append([]string{"p50", formatValue(*sum.P50, m.Unit)})
		t.Append([]string{"p90", formatValue(*sum.P90, m.Unit)})
		t.Append([]string{"p95", formatValue(*sum.P95, m.Unit)})
		t.Append([]string{"p99", formatValue(*sum.P99, m.Unit)})
	}
	t.Render()
	if res.Truncated {
		fmt.Fprintln(s.out, "history does not cover the whole range")
	}
	return nil
}

func (s *shell) cmdArchive(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("archive")
	}
	ref, fromMs, toMs, err := s.parseSeriesArgs(args[0], args[1:])
	if err != nil {
		return err
	}
	if ref.Tier < 0 {
		ref.Tier = 0
	}

	a, err := s.archive()
	if err != nil {
		return err
	}
	samples, err := a.QueryMetric(context.Background(), ref.Metric, ref.Tier,
		time.UnixMilli(fromMs), time.UnixMilli(toMs))
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s: %d archived samples\n", ref, len(samples))
	unit := ""
	if m, err := s.reg.Lookup(ref.Metric); err == nil {
		unit = m.Unit
	}
	s.printSamples(samples, unit)
	return nil
}

func (s *shell) cmdSQL(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return usageError("sql")
	}

	a, err := s.archive()
	if err != nil {
		return err
	}
	res, err := a.ExecuteSQL(context.Background(), args[0])
	if err != nil {
		return err
	}

	t := s.table(res.Columns...)
	for i, row := range res.Rows {
		if i == s.maxRows {
			break
		}
		cells := make([]string, len(res.Columns))
		for j, col := range res.Columns {
			cells[j] = fmt.Sprint(row[col])
		}
		t.Append(cells)
	}
	t.Render()

	if n := len(res.Rows); n > s.maxRows {
		fmt.Fprintf(s.out, "... %d more rows\n", n-s.maxRows)
	}
	if res.Truncated {
		fmt.Fprintln(s.out, "result truncated by storage.query.max_rows")
	}
	return nil
}

func (s *shell) cmdDiskUsage([]string) error {
	usage, err := s.svc.GetDiskUsage()
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, retention.FormatDiskUsage(usage))
	return nil
}

func (s *shell) cmdRetention([]string) error {
	results, err := s.svc.DryRunRetention()
	if err != nil {
		return err
	}

	t := s.table("Log", "Cutoff", "Delete", "Keep", "Frees")
	for _, r := range results {
		cutoff := "-"
		if !r.Cutoff.IsZero() {
			cutoff = r.Cutoff.Format(timeLayout)
		}
		name := validation.SeriesRef{Metric: r.Metric, Tier: r.Tier}
		if r.Unknown {
			cutoff = "unknown metric"
		}
		t.Append([]string{
			name.String(),
			cutoff,
			strconv.Itoa(r.SegmentsDeleted),
			strconv.Itoa(r.SegmentsKept),
			strconv.FormatInt(r.BytesFreed, 10),
		})
	}
	t.Render()
	return nil
}

func (s *shell) cmdRequirements([]string) error {
	layouts, err := loader.Layouts(s.cfg, sysinfo.DefaultStatistics())
	if err != nil {
		return err
	}
	req := s.cfg.Storage.CalculateRequirements(layouts)
	fmt.Fprint(s.out, req.FormatRequirements())
	return nil
}

func (s *shell) cmdExit([]string) error {
	return errExit
}

// =============================================================================
// Helpers
// =============================================================================

func (s *shell) parseSeriesArgs(refArg string, rest []string) (*validation.SeriesRef, int64, int64, error) {
	ref, err := validation.ParseSeriesRef(refArg)
	if err != nil {
		return nil, 0, 0, errors.NewInvalidValue("series", refArg, err.Error())
	}

	rangeArg := string(query.PeriodDay)
	if len(rest) > 0 {
		rangeArg = rest[0]
	}
	now := s.clock.Now()
	r, err := query.ParseRange(rangeArg, now)
	if err != nil {
		return nil, 0, 0, err
	}
	fromMs, toMs := r.Bounds(now)
	return ref, fromMs, toMs, nil
}

func (s *shell) queryRef(ref *validation.SeriesRef, fromMs, toMs int64, maxPoints int) (*query.Result, error) {
	if ref.Tier >= 0 {
		return s.engine.QueryTier(ref.Metric, ref.Tier, fromMs, toMs, maxPoints)
	}
	return s.engine.Query(ref.Metric, fromMs, toMs, maxPoints)
}

// archive opens the DuckDB analyzer on first use.
func (s *shell) archive() (*archive.Analyzer, error) {
	if s.analyzer != nil {
		return s.analyzer, nil
	}
	a, err := archive.NewAnalyzer(&s.cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.analyzer = a
	return a, nil
}

func (s *shell) printSamples(samples []types.Sample, unit string) {
	if len(samples) == 0 {
		return
	}

	// Newest rows are the interesting ones.
	skipped := 0
	if len(samples) > s.maxRows {
		skipped = len(samples) - s.maxRows
		samples = samples[skipped:]
	}

	t := s.table("Time", "Value", "Max")
	for _, smp := range samples {
		t.Append([]string{formatTime(smp.TimestampMs), formatValue(smp.Value, unit), formatValue(smp.Max, unit)})
	}
	if skipped > 0 {
		fmt.Fprintf(s.out, "... %d older rows\n", skipped)
	}
	t.Render()
}

func (s *shell) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(s.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func usageError(name string) error {
	return errors.NewValidation("arguments", "usage: "+commands[name].usage)
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Format(timeLayout)
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}
