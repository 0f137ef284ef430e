package ir

// Label is an opaque identifier resolved to a byte offset in the final
// output by the label-sizing pass (backend.Output's LabelOutput). A label
// occurs at most once in a Listing (spec.md §3 invariant), but may be
// *referenced* by any number of operands, including back-edges.
type Label uint32

// InvalidLabel is never assigned to a real instruction position.
const InvalidLabel Label = 0

// labelAllocator hands out unique Label ids for one Listing.
type labelAllocator struct{ next Label }

func (a *labelAllocator) alloc() Label {
	a.next++
	return a.next
}
