package eval

// Summarize computes the aggregate of one variant's rows. Failed rows count
// in every denominator with zero usage.
func Summarize(label string, rows []Row) Aggregate {
	agg := Aggregate{Variant: label, Questions: len(rows)}
	if len(rows) == 0 {
		return agg
	}

	var in, out, cacheRead, cacheCreate, toolCalls, turns int
	for _, r := range rows {
		if r.Correct {
			agg.Correct++
		}
		if r.Failed() {
			agg.Failures++
		}
		in += r.InputTokens
		out += r.OutputTokens
		cacheRead += r.CacheReadTokens
		cacheCreate += r.CacheCreationTokens
		toolCalls += r.ToolCalls
		turns += r.Turns
	}

	n := float64(len(rows))
	agg.Accuracy = float64(agg.Correct) / n
	agg.MeanInputTokens = float64(in) / n
	agg.MeanOutputTokens = float64(out) / n
	agg.MeanCacheReadTokens = float64(cacheRead) / n
	agg.MeanCacheCreationTokens = float64(cacheCreate) / n
	agg.MeanToolCalls = float64(toolCalls) / n
	agg.MeanTurns = float64(turns) / n
	return agg
}
