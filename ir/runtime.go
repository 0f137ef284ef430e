package ir

// DivisionByZeroRaiser is the well-known external Ref naming the runtime
// support routine integer division/modulo lowering calls into when its
// divisor is zero at runtime. The call never returns to its caller: the
// routine raises the language-level DivisionByZero exception and unwinds
// the frame directly, consulting the active-blocks table the same way any
// other exception would (spec.md §4.4 step 4, §4.8, §8 scenario 6).
var DivisionByZeroRaiser = &Ref{Name: "ngen_raise_division_by_zero"}
