package ir

// Rewriter accumulates the legalized instruction stream a RemoveInvalid or
// Layout pass produces. Passes need to turn one original instruction into
// a sequence of several (a division protected by a zero-check, a prolog
// expanded into push/sub/spill instructions) and to insert instructions
// that were never in the original stream at all (destruction sequences,
// constant pools); Rewriter tracks where each original position's labels
// land in the new stream so LabelsBefore/LabelPosition keep working
// afterwards.
type Rewriter struct {
	l               *Listing
	out             []Instr
	outLabelsBefore map[int][]Label
	pendingLabels   []Label
}

// NewRewriter begins a rewrite pass over l. l is not modified until
// Finish is called.
func (l *Listing) NewRewriter() *Rewriter {
	return &Rewriter{l: l, outLabelsBefore: map[int][]Label{}}
}

// Carry copies the labels attached before originalPos in the source
// listing onto whatever instruction emits next, then appends instrs.
func (r *Rewriter) Carry(originalPos int, instrs ...Instr) {
	r.pendingLabels = append(r.pendingLabels, r.l.LabelsBefore(originalPos)...)
	r.Emit(instrs...)
}

// Emit appends instrs with no originating position (newly synthesized
// code, e.g. a division-by-zero trap or a destruction sequence).
func (r *Rewriter) Emit(instrs ...Instr) {
	for _, instr := range instrs {
		if len(r.pendingLabels) > 0 {
			r.outLabelsBefore[len(r.out)] = append(r.outLabelsBefore[len(r.out)], r.pendingLabels...)
			r.pendingLabels = nil
		}
		r.out = append(r.out, instr)
	}
}

// PlaceLabel attaches lbl to whatever instruction is emitted next, exactly
// as Listing.PlaceLabel does for the original build pass.
func (r *Rewriter) PlaceLabel(lbl Label) {
	r.pendingLabels = append(r.pendingLabels, lbl)
}

// Len returns the number of instructions emitted into the rewriter so far.
func (r *Rewriter) Len() int { return len(r.out) }

// Finish replaces the listing's instruction stream and label tables with
// the rewriter's accumulated output.
func (r *Rewriter) Finish() {
	if len(r.pendingLabels) > 0 {
		r.outLabelsBefore[len(r.out)] = append(r.outLabelsBefore[len(r.out)], r.pendingLabels...)
	}
	r.l.instrs = r.out
	r.l.labelsBefore = r.outLabelsBefore
	r.l.labelAt = map[Label]int{}
	for pos, lbls := range r.outLabelsBefore {
		for _, lbl := range lbls {
			r.l.labelAt[lbl] = pos
		}
	}
}
