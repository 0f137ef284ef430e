package backend

// UnwindProducer emits the stack-unwinding metadata spec.md §6's
// "Unwinder contract (produced)" section describes: DWARF CFI on POSIX and
// RUNTIME_FUNCTION/UNWIND_INFO on Win64 (no producer builds a Win32 fs:[0]
// SEH frame). Implemented by packages unwind/dwarfcfi and unwind/seh;
// Compile picks the right one via Arena.Unwind and calls it twice, after
// AsmOut's sizing pass and again after its code pass.
type UnwindProducer interface {
	// Emit appends this target/OS's unwind metadata for one function to
	// out, given its laid-out frame shape and the label offsets AsmOut's
	// CodeOutput pass resolved.
	Emit(frame *FrameInfo, out Output) error
}

// Publisher is the narrow slice of GC the unwind producers need at
// publication time: registering a function's unwind record with the OS
// (Win64's RtlAddFunctionTable equivalent) happens through the same GC
// collaborator that owns the code allocation, per spec.md §6.
type Publisher interface {
	RegisterUnwindInfo(code []byte, frame *FrameInfo)
}
