package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// The five non-recoverable error kinds from spec.md §4.8/§7. Each wraps its
// position with github.com/pkg/errors so a caller can still print a stack
// trace back to the RemoveInvalid/Layout call site that raised it, the
// idiom used by
// _examples/other_examples/bb9c4e55_golint-fixer-exp__cmd-bin2ll-ll.go.go
// for its own fatal, positioned compiler errors.

// BlockBeginError reports malformed block nesting at beginBlock.
type BlockBeginError struct {
	Pos   int
	Block BlockID
	Want  BlockID
}

func (e *BlockBeginError) Error() string {
	return fmt.Sprintf("instr %d: beginBlock %d expected parent %d", e.Pos, e.Block, e.Want)
}

// NewBlockBeginError builds a stack-annotated BlockBeginError.
func NewBlockBeginError(pos int, block, want BlockID) error {
	return errors.WithStack(&BlockBeginError{Pos: pos, Block: block, Want: want})
}

// BlockEndError reports a mismatched or out-of-order endBlock.
type BlockEndError struct {
	Pos   int
	Block BlockID
}

func (e *BlockEndError) Error() string {
	return fmt.Sprintf("instr %d: endBlock %d does not match the active block, or block was already ended", e.Pos, e.Block)
}

// NewBlockEndError builds a stack-annotated BlockEndError.
func NewBlockEndError(pos int, block BlockID) error {
	return errors.WithStack(&BlockEndError{Pos: pos, Block: block})
}

// VariableUseError reports a Var referenced from a block that is not its
// ancestor.
type VariableUseError struct {
	Pos int
	Var VarID
}

func (e *VariableUseError) Error() string {
	return fmt.Sprintf("instr %d: variable %d used outside its declaring block's lineage", e.Pos, e.Var)
}

// NewVariableUseError builds a stack-annotated VariableUseError.
func NewVariableUseError(pos int, v VarID) error {
	return errors.WithStack(&VariableUseError{Pos: pos, Var: v})
}

// VariableActivationError reports `activate` on an already-active or
// non-FreeInactive variable.
type VariableActivationError struct {
	Pos int
	Var VarID
}

func (e *VariableActivationError) Error() string {
	return fmt.Sprintf("instr %d: variable %d is not eligible for activate (not freeInactive, or already activated)", e.Pos, e.Var)
}

// NewVariableActivationError builds a stack-annotated VariableActivationError.
func NewVariableActivationError(pos int, v VarID) error {
	return errors.WithStack(&VariableActivationError{Pos: pos, Var: v})
}

// InvalidValue reports a constant or layout shape the target cannot encode
// even after every legalization fallback, or an unsupported aggregate
// return shape.
type InvalidValue struct {
	Pos    int
	Reason string
}

func (e *InvalidValue) Error() string {
	return fmt.Sprintf("instr %d: invalid value: %s", e.Pos, e.Reason)
}

// NewInvalidValue builds a stack-annotated InvalidValue.
func NewInvalidValue(pos int, reason string) error {
	return errors.WithStack(&InvalidValue{Pos: pos, Reason: reason})
}
