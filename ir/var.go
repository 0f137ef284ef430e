package ir

// VarID identifies a Var within its owning Listing.
type VarID uint32

// ReleaseWhen is a bitmask of the conditions under which a Var's free
// function runs, per spec.md §3.
type ReleaseWhen uint8

const (
	ReleaseNone        ReleaseWhen = 0
	ReleaseOnException ReleaseWhen = 1 << iota
	ReleaseOnBlockExit
)

// ReleaseHow selects whether the free function receives the value itself or
// a pointer to it.
type ReleaseHow byte

const (
	ReleaseByValue ReleaseHow = iota
	ReleaseByPointer
)

// FreePolicy describes how and when a Var is released, and whether it needs
// an explicit activate before it is considered constructed. Grounded on
// spec.md §3's Variable free-policy description; no wazero analogue exists
// (wasm locals have no destructors) so this is modeled directly off the
// spec and exercised by Layout's destruction-order walk (§4.5).
type FreePolicy struct {
	When ReleaseWhen
	How  ReleaseHow

	// FreeInactive requires an explicit `activate` pseudo-op before the
	// variable is considered constructed; a block exit before activation
	// skips this variable's destructor entirely.
	FreeInactive bool

	// FreeFunc is the Ref to call on release; nil means "no destructor",
	// e.g. a trivially-destructible local that still participates in stack
	// layout.
	FreeFunc *Ref
}

// Var is a lexically-scoped local. Grounded on spec.md §3; Block ownership
// mirrors the scope-tree shape visible in
// _examples/other_examples/213763c9_smasonuk-sicpu__pkg-compiler-codegen.go.go.
type Var struct {
	ID    VarID
	Size  uint32
	Block *Block

	// IsParam is true when this Var is a parameter of the root block, and
	// ParamIndex is then its position; both are set by the frontend before
	// lowering.
	ParamIndex int
	IsParam    bool

	Policy FreePolicy

	// Indirect marks a variable whose storage holds a pointer to the value
	// rather than the value itself. It is set by whoever builds the
	// listing; no lowering pass sets it, including for parameters the ABI
	// classifies into memory.
	Indirect bool

	// SuppressZeroInit skips the prolog's zero-initialization of this
	// variable on root-block entry.
	SuppressZeroInit bool

	// activationID is assigned by Layout's `activate` handling; zero means
	// "active from block entry" (FreeInactive == false) or "not yet
	// activated" (FreeInactive == true and `activate` hasn't run).
	activationID uint16
	activated    bool
}

// ActivationID returns the activation counter value assigned to this Var by
// `activate`, or 0 if the Var is unconditionally active from block entry.
func (v *Var) ActivationID() uint16 { return v.activationID }

// Activated reports whether a FreeInactive Var has had `activate` applied.
func (v *Var) Activated() bool { return !v.Policy.FreeInactive || v.activated }

// SetActivation assigns the activation id Layout's `activate` handling
// computes for this Var; called exactly once, when the activate pseudo-op
// for this Var is lowered.
func (v *Var) SetActivation(id uint16) { v.activationID = id }
