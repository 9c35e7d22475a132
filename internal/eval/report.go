package eval

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/muesli/reflow/truncate"
)

// answerPreviewWidth bounds the answer column of the report.
const answerPreviewWidth = 60

// PrintReport writes the comparison table for rec: one line per
// (question, variant) followed by one aggregate line per variant.
func PrintReport(w io.Writer, rec *Record) {
	if rec == nil {
		return
	}
	fmt.Fprint(w, "\n"+color.CyanString("=== Evaluation Results ===")+"\n")
	fmt.Fprintf(w, "Model: %s\n", rec.Model)
	fmt.Fprintf(w, "Time: %s\n", rec.Timestamp.Format(time.RFC3339))
	for _, v := range rec.Variants {
		fmt.Fprintf(w, "Prompt %s: %s (~%d tokens)\n", v.Label, v.Fingerprint, v.PromptTokens)
	}
	fmt.Fprintln(w)

	printRows(w, rec.Rows())
	printAggregates(w, rec.Variants)

	fmt.Fprint(w, color.CyanString("=== End Results ===")+"\n\n")
}

func printRows(w io.Writer, rows []Row) {
	fmt.Fprint(w, color.GreenString("Questions:")+"\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROMPT\tRESULT\tIN\tOUT\tCACHE R/W\tTOOLS\tTURNS\tANSWER")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d/%d\t%d\t%d\t%s\n",
			r.ID,
			r.Variant,
			outcome(r),
			r.InputTokens,
			r.OutputTokens,
			r.CacheReadTokens,
			r.CacheCreationTokens,
			r.ToolCalls,
			r.Turns,
			preview(r.Response),
		)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printAggregates(w io.Writer, variants []VariantResult) {
	fmt.Fprint(w, color.GreenString("Aggregates:")+"\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROMPT\tACCURACY\tFAILURES\tAVG IN\tAVG OUT\tAVG CACHE R/W\tAVG TOOLS\tAVG TURNS")
	for _, v := range variants {
		a := v.Aggregate
		fmt.Fprintf(tw, "%s\t%.1f%% (%d/%d)\t%d\t%.1f\t%.1f\t%.1f/%.1f\t%.2f\t%.2f\n",
			v.Label,
			a.Accuracy*100,
			a.Correct,
			a.Questions,
			a.Failures,
			a.MeanInputTokens,
			a.MeanOutputTokens,
			a.MeanCacheReadTokens,
			a.MeanCacheCreationTokens,
			a.MeanToolCalls,
			a.MeanTurns,
		)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func outcome(r Row) string {
	switch {
	case r.Failed():
		return color.YellowString("ERROR")
	case r.Correct:
		return color.GreenString("PASS")
	default:
		return color.RedString("FAIL")
	}
}

// preview flattens an answer to one line of bounded width.
func preview(s string) string {
	flat := strings.Join(strings.Fields(s), " ")
	return truncate.StringWithTail(flat, answerPreviewWidth, "...")
}
