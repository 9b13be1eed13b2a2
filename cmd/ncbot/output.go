package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"ncbot/internal/recast"
)

// printer writes human-readable output, colored only on a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.color = isatty.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == ""
	}
	return p
}

func (p *printer) paint(c *color.Color, s string) string {
	if !p.color {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

func (p *printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) field(label string, value interface{}) {
	p.line("  %-20s %v", p.paint(color.New(color.Faint), label), value)
}

// printValue renders v as json or yaml, or calls text for the default format.
func printValue(w io.Writer, format string, v interface{}, text func(p *printer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		text(newPrinter(w))
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func printSummary(w io.Writer, format string, sum *recast.Summary) error {
	return printValue(w, format, sum, func(p *printer) {
		status := p.paint(color.New(color.FgGreen, color.Bold), "ok")
		if sum.RecastsFailed > 0 || sum.HistoryFailures > 0 || sum.IndexPartial {
			status = p.paint(color.New(color.FgYellow, color.Bold), "partial")
		}
		p.line("Run %s (%s): %s", sum.RunID, sum.Mode, status)
		p.field("accounts", fmt.Sprintf("%d loaded, %d skipped, %d processed", sum.AccountsLoaded, sum.AccountsSkipped, sum.AccountsProcessed))
		p.field("index", fmt.Sprintf("%d authors", sum.IndexedAuthors))
		p.field("posts", fmt.Sprintf("%d examined, %d eligible", sum.PostsExamined, sum.PostsEligible))
		p.field("recasts", fmt.Sprintf("%d attempted, %d succeeded, %d failed", sum.RecastsAttempted, sum.RecastsSucceeded, sum.RecastsFailed))
		p.field("deferred", sum.PostsDeferred)
		if sum.HistoryFailures > 0 {
			p.field("history failures", p.paint(color.New(color.FgRed), fmt.Sprint(sum.HistoryFailures)))
		}
		if len(sum.Rejected) > 0 {
			reasons := make([]string, 0, len(sum.Rejected))
			for r := range sum.Rejected {
				reasons = append(reasons, string(r))
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				p.field("rejected "+r, sum.Rejected[recast.Reason(r)])
			}
		}
		p.field("duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	})
}
