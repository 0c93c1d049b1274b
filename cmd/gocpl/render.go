package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	historydto "gocpl/internal/modules/history/dto"
	recipedto "gocpl/internal/modules/recipe/dto"
	"gocpl/internal/ui/theme"
)

func renderDiscovery(w io.Writer, out recipedto.DiscoverOutput) {
	loaded := 0
	for _, p := range out.Plugins {
		if p.Loaded {
			loaded++
		}
	}
	_, _ = fmt.Fprintf(w, "%s %d recipe(s) from %d of %d plugin(s)\n",
		theme.Title.Render("discovered"), len(out.Recipes), loaded, len(out.Plugins))
	for _, warning := range out.Warnings {
		_, _ = fmt.Fprintf(w, "%s %s\n", theme.Hot.Render("warning"), warning)
	}
}

func renderRecipes(w io.Writer, recipes []recipedto.RecipeInfo) {
	if len(recipes) == 0 {
		_, _ = fmt.Fprintln(w, "no recipes")
		return
	}
	width := 0
	for _, r := range recipes {
		width = max(width, len(r.Name))
	}
	for _, r := range recipes {
		name := theme.Title.Render(r.Name + strings.Repeat(" ", width-len(r.Name)))
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n", name, theme.Muted.Render(versionOrDash(r.Version)), r.Synopsis)
	}
}

func renderDetail(w io.Writer, d recipedto.RecipeDetail) {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s %s\n", theme.Title.Render(d.Name), theme.Muted.Render(versionOrDash(d.Version)))
	if d.Synopsis != "" {
		fmt.Fprintln(b, d.Synopsis)
	}
	fmt.Fprintln(b, theme.Muted.Render("plugin "+d.Plugin))
	if d.Author != "" {
		author := d.Author
		if d.Email != "" {
			author += " <" + d.Email + ">"
		}
		fmt.Fprintln(b, theme.Muted.Render("author "+author))
	}
	if d.Description != "" {
		fmt.Fprintf(b, "\n%s\n", strings.TrimRight(d.Description, "\n"))
	}

	fmt.Fprintf(b, "\n%s\n", theme.Section.Render("Parameters"))
	if len(d.Parameters) == 0 {
		fmt.Fprintln(b, theme.Muted.Render("  none"))
	}
	for _, p := range d.Parameters {
		name := p.Name
		if p.Alias != "" && p.Alias != p.Name {
			name += " (" + p.Alias + ")"
		}
		fmt.Fprintf(b, "  %s  %s  default %s%s\n", theme.Hot.Render(name), p.Type, p.Default, constraint(p))
		if p.Description != "" {
			fmt.Fprintf(b, "      %s\n", theme.Muted.Render(p.Description))
		}
	}

	fmt.Fprintf(b, "\n%s\n", theme.Section.Render("Inputs"))
	if len(d.Inputs) == 0 {
		fmt.Fprintln(b, theme.Muted.Render("  any frames"))
	}
	for _, in := range d.Inputs {
		fmt.Fprintf(b, "  %s  %s\n", in.Tag, theme.Muted.Render(in.Description))
	}

	if len(d.Outputs) > 0 {
		fmt.Fprintf(b, "\n%s\n", theme.Section.Render("Outputs"))
		for _, tag := range d.Outputs {
			fmt.Fprintf(b, "  %s\n", tag)
		}
	}
	_, _ = fmt.Fprintln(w, theme.Panel.Render(strings.TrimRight(b.String(), "\n")))
}

func constraint(p recipedto.ParameterInfo) string {
	switch {
	case len(p.Choices) > 0:
		return "  one of " + strings.Join(p.Choices, "|")
	case p.Min != "" && p.Max != "":
		return fmt.Sprintf("  range [%s, %s]", p.Min, p.Max)
	case p.Min != "":
		return "  min " + p.Min
	case p.Max != "":
		return "  max " + p.Max
	default:
		return ""
	}
}

func renderPlugins(w io.Writer, plugins []recipedto.PluginInfo) {
	if len(plugins) == 0 {
		_, _ = fmt.Fprintln(w, "no plugins")
		return
	}
	for _, p := range plugins {
		if p.Loaded {
			_, _ = fmt.Fprintf(w, "%s  %s  %s\n", theme.Outcome("loaded"), p.Path, theme.Muted.Render(strings.Join(p.Recipes, ", ")))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n", theme.Outcome("failed"), p.Path, p.Error)
	}
}

func renderRun(w io.Writer, out recipedto.RunOutput, showLog bool) {
	status := theme.Outcome("ok")
	if out.Status != 0 {
		status = theme.Fail.Render(fmt.Sprintf("status %d", out.Status))
	}
	_, _ = fmt.Fprintf(w, "%s %s  run %s  %s\n", theme.Title.Render(out.Recipe), status, out.RunID,
		theme.Muted.Render(out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond).String()))
	for _, p := range out.Products {
		if p.Missing {
			_, _ = fmt.Fprintf(w, "  %s  %s %s\n", tagColumn.Render(p.Tag), p.Path, theme.Fail.Render("(missing)"))
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s  %s\n", tagColumn.Render(p.Tag), p.Path)
	}
	if len(out.Keywords) > 0 {
		keys := make([]string, 0, len(out.Keywords))
		for k := range out.Keywords {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = fmt.Fprintln(w, theme.Section.Render("Keywords"))
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s = %s\n", k, out.Keywords[k])
		}
	}
	if showLog && out.Log != "" {
		_, _ = fmt.Fprintln(w, theme.Section.Render("Log"))
		_, _ = fmt.Fprint(w, out.Log)
	}
}

var (
	outcomeColumn = lipgloss.NewStyle().Width(13)
	tagColumn     = lipgloss.NewStyle().Width(20)
)

func renderHistory(w io.Writer, runs []historydto.RunOutput) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no runs")
		return
	}
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s  %s  %s %s  %s\n",
			theme.Muted.Render(r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			r.ID,
			outcomeColumn.Render(theme.Outcome(r.Outcome)),
			r.Recipe,
			theme.Muted.Render(r.Duration.Round(time.Millisecond).String()))
	}
}

func renderHistoryRun(w io.Writer, r historydto.RunOutput) {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s %s  %s\n", theme.Title.Render(r.Recipe), theme.Outcome(r.Outcome), r.ID)
	fmt.Fprintf(b, "plugin   %s\n", r.Plugin)
	fmt.Fprintf(b, "status   %d\n", r.Status)
	fmt.Fprintf(b, "started  %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(b, "duration %s\n", r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(b, "error    %s\n", theme.Fail.Render(r.Error))
	}
	for _, o := range r.Outputs {
		fmt.Fprintf(b, "  %s  %s\n", o.Tag, filepath.Clean(o.Path))
	}
	_, _ = fmt.Fprintln(w, theme.Panel.Render(strings.TrimRight(b.String(), "\n")))
}

func versionOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
