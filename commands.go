package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/d361120041/health-log/auth"
	"github.com/d361120041/health-log/dates"
	"github.com/d361120041/health-log/records"
	"github.com/d361120041/health-log/reports"
	"github.com/d361120041/health-log/settings"
)

// command is one CLI command. run returns the summary shown when the
// command succeeds.
type command struct {
	name   string
	args   string
	title  string
	path   string
	target func(args []string) string
	run    func(ctx context.Context, a *app, args []string) (string, error)
}

func (c *command) route(args []string) string {
	if c.target != nil {
		return c.target(args)
	}
	return c.path
}

var commands []*command

func init() {
	commands = []*command{
		{name: "login", title: "Checking credentials", path: "/", run: runLogin},
		{name: "logout", title: "Revoking session", path: "/", run: runLogout},
		{name: "whoami", title: "Reading identity", path: "/", run: runWhoami},
		{name: "register", args: "<email> <password> <confirm>", title: "Registering", path: "/register", run: runRegister},
		{name: "verify-email", args: "<token>", title: "Verifying email", path: "/verify-email", run: runVerifyEmail},

		{name: "records list", title: "Loading records", path: "/records", run: runRecordsList},
		{name: "records get", args: "<date>", title: "Loading record", target: recordPath, run: runRecordsGet},
		{name: "records save", args: "<date> field=value...", title: "Saving record", path: "/records/new", run: runRecordsSave},
		{name: "records delete", args: "<date>", title: "Deleting record", target: recordPath, run: runRecordsDelete},
		{name: "records search", args: "[-page n] [column:OP:value...]", title: "Searching records", path: "/records", run: runRecordsSearch},

		{name: "reports number", args: "<field> [-from date] [-to date]", title: "Loading number report", path: "/reports", run: runReportNumber},
		{name: "reports trend", args: "<field> [-from date] [-to date] [-nulls]", title: "Loading trend", path: "/reports", run: runReportTrend},
		{name: "reports enum-distribution", args: "<field> [-from date] [-to date]", title: "Loading distribution", path: "/reports", run: runReportEnumDistribution},
		{name: "reports enum-trend", args: "<field> [-from date] [-to date]", title: "Loading enum trend", path: "/reports", run: runReportEnumTrend},
		{name: "reports text", args: "<field> [-from date] [-to date]", title: "Loading text analysis", path: "/reports", run: runReportText},

		{name: "settings list", title: "Loading fields", path: "/records/new", run: runSettingsList},
		{name: "settings all", title: "Loading all fields", path: "/admin/settings", run: runSettingsAll},
		{name: "settings get", args: "<id>", title: "Loading field", path: "/admin/settings", run: runSettingsGet},
		{name: "settings create", args: "-name n -type NUMBER|TEXT|ENUM [-unit u] [-options a,b] [-required] [-inactive]", title: "Creating field", path: "/admin/settings", run: runSettingsCreate},
		{name: "settings update", args: "<id> [-name n] [-type t] [-unit u] [-options a,b] [-required] [-inactive]", title: "Updating field", path: "/admin/settings", run: runSettingsUpdate},
		{name: "settings delete", args: "<id>", title: "Deleting field", path: "/admin/settings", run: runSettingsDelete},

		{name: "dashboard", title: "Loading dashboard", path: "/", run: runDashboard},
	}
}

// lookup finds the command named by the leading words of args and
// returns the remaining arguments.
func lookup(args []string) (*command, []string, error) {
	if len(args) == 0 {
		return nil, nil, usageError("missing command")
	}
	if len(args) >= 2 {
		if c := find(args[0] + " " + args[1]); c != nil {
			return c, args[2:], nil
		}
	}
	if c := find(args[0]); c != nil {
		return c, args[1:], nil
	}
	return nil, nil, usageError("unknown command %q", strings.Join(args[:min(len(args), 2)], " "))
}

func find(name string) *command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [flags] <command> [args]\n\nCommands:\n", appName)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-26s %s\n", c.name, c.args)
	}
	fmt.Fprintf(w, "\nRun %s -h for flags.\n", appName)
}

func recordPath(args []string) string {
	if len(args) == 0 {
		return "/records"
	}
	return "/records/" + url.PathEscape(args[0])
}

// ── account ──────────────────────────────────────────────────────────────────

func runLogin(_ context.Context, a *app, _ []string) (string, error) {
	id := a.session.Identity()
	if id == nil {
		return "Logged in", nil
	}
	return "Logged in as " + id.Email, nil
}

func runLogout(ctx context.Context, a *app, _ []string) (string, error) {
	a.logout(ctx)
	return "Session closed", nil
}

func runWhoami(_ context.Context, a *app, _ []string) (string, error) {
	id := a.session.Identity()
	if id == nil {
		return "", fmt.Errorf("access token carries no identity")
	}
	printIdentity(a.out, id, a.client.BaseURL())
	return id.Email, nil
}

func runRegister(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError("register <email> <password> <confirm>")
	}
	msg, err := a.auth.Register(ctx, auth.Registration{Email: args[0], Password: args[1], ConfirmPassword: args[2]})
	if err != nil {
		return "", err
	}
	return messageOr(msg, "Registered, check your inbox for the verification email"), nil
}

func runVerifyEmail(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("verify-email <token>")
	}
	msg, err := a.auth.VerifyEmail(ctx, args[0])
	if err != nil {
		return "", err
	}
	return messageOr(msg, "Email verified"), nil
}

func messageOr(m *auth.Message, fallback string) string {
	if m == nil || m.Message == "" {
		return fallback
	}
	return m.Message
}

// ── records ──────────────────────────────────────────────────────────────────

func runRecordsList(ctx context.Context, a *app, _ []string) (string, error) {
	list, err := a.records.FetchList(ctx)
	if err != nil {
		return "", err
	}
	printRecords(a.out, list)
	return fmt.Sprintf("%d records", len(list)), nil
}

func runRecordsGet(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("records get <date>")
	}
	rec, err := a.records.FetchByDate(ctx, args[0])
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "No record for " + args[0], nil
	}
	printRecord(a.out, rec)
	return "Record " + rec.RecordDate, nil
}

func runRecordsSave(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) < 1 {
		return "", usageError("records save <date> field=value...")
	}
	values, err := parseValues(args[1:])
	if err != nil {
		return "", err
	}

	fields, err := a.settings.FetchActive(ctx)
	if err != nil {
		return "", err
	}
	if err := validateValues(fields, values); err != nil {
		return "", err
	}

	saved, err := a.records.Save(ctx, args[0], values)
	if err != nil {
		return "", err
	}
	printRecord(a.out, saved)
	return "Saved " + saved.RecordDate, nil
}

func runRecordsDelete(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("records delete <date>")
	}
	if err := a.records.Delete(ctx, args[0]); err != nil {
		return "", err
	}
	return "Deleted " + args[0], nil
}

func runRecordsSearch(ctx context.Context, a *app, args []string) (string, error) {
	fs := flag.NewFlagSet("records search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	page := fs.Int("page", 0, "zero-based page")
	if err := fs.Parse(args); err != nil {
		return "", usageError("%v", err)
	}

	wheres := make([]records.Where, 0, fs.NArg())
	for _, arg := range fs.Args() {
		w, err := parseWhere(arg)
		if err != nil {
			return "", err
		}
		wheres = append(wheres, w)
	}

	res, err := a.records.SearchPage(ctx, *page, wheres...)
	if err != nil {
		return "", err
	}
	printRecords(a.out, res.Content)
	p := a.records.Pages()
	return fmt.Sprintf("Page %d of %d, %d records total", p.CurrentPage+1, max(p.TotalPages, 1), p.TotalElements), nil
}

// parseValues reads field=value pairs.
func parseValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, usageError("expected field=value, got %q", arg)
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return values, nil
}

// validateValues checks values against the active field definitions.
func validateValues(fields []settings.FieldSetting, values map[string]string) error {
	known := make(map[string]settings.FieldSetting, len(fields))
	for _, f := range fields {
		known[f.FieldName] = f
		if err := f.Validate(values[f.FieldName]); err != nil {
			return err
		}
	}
	for k := range values {
		if _, ok := known[k]; !ok {
			return fmt.Errorf("unknown field %q", k)
		}
	}
	return nil
}

// parseWhere reads a column:OP:value filter.
func parseWhere(arg string) (records.Where, error) {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return records.Where{}, usageError("expected column:OP:value, got %q", arg)
	}
	op := records.Operator(strings.ToUpper(parts[1]))
	switch op {
	case records.OpEQ, records.OpNE, records.OpGT, records.OpGTE, records.OpLT, records.OpLTE, records.OpLike:
	default:
		return records.Where{}, usageError("unknown operator %q", parts[1])
	}
	return records.Cond(parts[0], op, parts[2]), nil
}

// ── reports ──────────────────────────────────────────────────────────────────

// parseQuery reads <field> [-from date] [-to date]. The range defaults to
// the last 30 days.
func parseQuery(name string, args []string) (reports.Query, bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	from := fs.String("from", dates.DaysAgo(30), "start date YYYY-MM-DD")
	to := fs.String("to", dates.Today(), "end date YYYY-MM-DD")
	nulls := fs.Bool("nulls", false, "include days without a value")

	// The field name may come before or after the flags
	var field string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		field, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return reports.Query{}, false, usageError("%v", err)
	}
	if field == "" && fs.NArg() > 0 {
		field = fs.Arg(0)
	}
	if field == "" {
		return reports.Query{}, false, usageError("%s <field> [-from date] [-to date]", name)
	}
	return reports.Query{FieldName: field, StartDate: *from, EndDate: *to}, *nulls, nil
}

func runReportNumber(ctx context.Context, a *app, args []string) (string, error) {
	q, _, err := parseQuery("reports number", args)
	if err != nil {
		return "", err
	}
	report, err := a.reports.FetchNumberReport(ctx, q)
	if err != nil {
		return "", err
	}
	printNumberReport(a.out, report)
	return fmt.Sprintf("%s from %s to %s", q.FieldName, q.StartDate, q.EndDate), nil
}

func runReportTrend(ctx context.Context, a *app, args []string) (string, error) {
	q, nulls, err := parseQuery("reports trend", args)
	if err != nil {
		return "", err
	}
	points, err := a.reports.FetchTrendData(ctx, q, nulls)
	if err != nil {
		return "", err
	}
	printTrend(a.out, points)
	return fmt.Sprintf("%d points", len(points)), nil
}

func runReportEnumDistribution(ctx context.Context, a *app, args []string) (string, error) {
	q, _, err := parseQuery("reports enum-distribution", args)
	if err != nil {
		return "", err
	}
	dist, err := a.reports.FetchEnumDistribution(ctx, q)
	if err != nil {
		return "", err
	}
	printDistribution(a.out, dist)
	return fmt.Sprintf("%d entries", dist.TotalCount), nil
}

func runReportEnumTrend(ctx context.Context, a *app, args []string) (string, error) {
	q, _, err := parseQuery("reports enum-trend", args)
	if err != nil {
		return "", err
	}
	trend, err := a.reports.FetchEnumTrend(ctx, q)
	if err != nil {
		return "", err
	}
	printEnumTrend(a.out, trend)
	return fmt.Sprintf("%d days", len(trend.TrendData)), nil
}

func runReportText(ctx context.Context, a *app, args []string) (string, error) {
	q, _, err := parseQuery("reports text", args)
	if err != nil {
		return "", err
	}
	analysis, err := a.reports.FetchTextAnalysis(ctx, q)
	if err != nil {
		return "", err
	}
	printTextAnalysis(a.out, analysis)
	return fmt.Sprintf("%d entries", analysis.TotalCount), nil
}

// ── settings ─────────────────────────────────────────────────────────────────

func runSettingsList(ctx context.Context, a *app, _ []string) (string, error) {
	fields, err := a.settings.FetchActive(ctx)
	if err != nil {
		return "", err
	}
	printFields(a.out, fields)
	return fmt.Sprintf("%d active fields", len(fields)), nil
}

func runSettingsAll(ctx context.Context, a *app, _ []string) (string, error) {
	fields, err := a.settings.FetchAll(ctx)
	if err != nil {
		return "", err
	}
	printFields(a.out, fields)
	return fmt.Sprintf("%d fields", len(fields)), nil
}

func runSettingsGet(ctx context.Context, a *app, args []string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "", err
	}
	f, err := a.settings.FetchByID(ctx, id)
	if err != nil {
		return "", err
	}
	printFields(a.out, []settings.FieldSetting{*f})
	return f.FieldName, nil
}

func runSettingsCreate(ctx context.Context, a *app, args []string) (string, error) {
	f := settings.FieldSetting{IsActive: true}
	if err := parseField("settings create", args, &f); err != nil {
		return "", err
	}
	if f.FieldName == "" || f.DataType == "" {
		return "", usageError("settings create needs -name and -type")
	}
	created, err := a.settings.Create(ctx, f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s (#%d)", created.FieldName, created.SettingID), nil
}

func runSettingsUpdate(ctx context.Context, a *app, args []string) (string, error) {
	id, err := parseID(args[:min(len(args), 1)])
	if err != nil {
		return "", err
	}
	current, err := a.settings.FetchByID(ctx, id)
	if err != nil {
		return "", err
	}
	f := *current
	if err := parseField("settings update", args[1:], &f); err != nil {
		return "", err
	}
	updated, err := a.settings.Update(ctx, id, f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s (#%d)", updated.FieldName, updated.SettingID), nil
}

func runSettingsDelete(ctx context.Context, a *app, args []string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "", err
	}
	if err := a.settings.Delete(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deactivated field #%d", id), nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError("expected a field id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError("invalid field id %q", args[0])
	}
	return id, nil
}

// parseField applies only the flags present in args to f.
func parseField(name string, args []string, f *settings.FieldSetting) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fieldName := fs.String("name", f.FieldName, "field name")
	dataType := fs.String("type", string(f.DataType), "NUMBER, TEXT or ENUM")
	unit := fs.String("unit", f.Unit, "unit")
	options := fs.String("options", f.Options, "comma separated ENUM options")
	required := fs.Bool("required", f.IsRequired, "value required")
	inactive := fs.Bool("inactive", !f.IsActive, "hide from the record form")
	if err := fs.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if fs.NArg() > 0 {
		return usageError("unexpected argument %q", fs.Arg(0))
	}

	dt := settings.DataType(strings.ToUpper(*dataType))
	switch dt {
	case "", settings.TypeNumber, settings.TypeText, settings.TypeEnum:
	default:
		return usageError("unknown data type %q", *dataType)
	}

	f.FieldName = strings.TrimSpace(*fieldName)
	f.DataType = dt
	f.Unit = *unit
	f.Options = *options
	f.IsRequired = *required
	f.IsActive = !*inactive
	return nil
}

// ── dashboard ────────────────────────────────────────────────────────────────

func runDashboard(ctx context.Context, a *app, _ []string) (string, error) {
	var (
		fields []settings.FieldSetting
		list   []records.Record
		today  *records.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields, err = a.settings.FetchActive(gctx)
		if err == nil {
			a.display.TaskDone("Fields loaded")
		}
		return err
	})
	g.Go(func() error {
		var err error
		list, err = a.records.FetchList(gctx)
		if err == nil {
			a.display.TaskDone("Records loaded")
		}
		return err
	})
	g.Go(func() error {
		var err error
		today, err = a.records.FetchByDate(gctx, dates.Today())
		if err == nil {
			a.display.TaskDone("Today loaded")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}
	sort.Strings(names)

	fmt.Fprintf(a.out, "Fields:  %s\n", strings.Join(names, ", "))
	fmt.Fprintf(a.out, "Records: %d\n", len(list))
	if today == nil {
		fmt.Fprintln(a.out, "Today:   no record yet")
	} else {
		fmt.Fprintln(a.out, "Today:")
		printRecord(a.out, today)
	}
	return fmt.Sprintf("%d fields, %d records", len(fields), len(list)), nil
}
