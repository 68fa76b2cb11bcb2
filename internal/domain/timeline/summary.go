package timeline

// Summarize attributes the removed part of [0, total) to the reasons of the
// given spans. Each reason is credited independently with the removed time
// its own spans cover, so entries may overlap and need not add up to the
// total removed time. Every reason present in spans gets an entry.
func Summarize(spans []Span, keeps []TimeRange, total float64) map[Reason]float64 {
	removed := Complement(keeps, total)
	byReason := map[Reason][]TimeRange{}
	for _, s := range spans {
		byReason[s.Reason] = append(byReason[s.Reason], s.Range)
	}

	out := make(map[Reason]float64, len(byReason))
	for reason, ranges := range byReason {
		out[reason] = TotalDuration(Intersection(ranges, removed))
	}
	return out
}
