package vm

// HookPos names a site in the memory subsystem where hooks are invoked.
type HookPos struct {
	Name string
}

// The hook positions.
var (
	// HookPosAccess triggers after a byte has been read or written. Detail is
	// an AccessDetail.
	HookPosAccess = &HookPos{Name: "Access"}

	// HookPosPageFault triggers after a page fault has been served. Detail is
	// a FaultDetail.
	HookPosPageFault = &HookPos{Name: "PageFault"}

	// HookPosEvict triggers after a resident page has been written to swap
	// and unmapped. Detail is an EvictDetail.
	HookPosEvict = &HookPos{Name: "Evict"}

	// HookPosSegmentCreate and HookPosSegmentDestroy trigger after the
	// segment table changed. Detail is a SegmentDetail.
	HookPosSegmentCreate  = &HookPos{Name: "SegmentCreate"}
	HookPosSegmentDestroy = &HookPos{Name: "SegmentDestroy"}
	HookPosSegmentMove    = &HookPos{Name: "SegmentMove"}
	HookPosSegmentResize  = &HookPos{Name: "SegmentResize"}
)

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Detail any
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	hooks []Hook
}

// AcceptHook register a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.hooks = append(h.hooks, hook)
}

// NumHooks returns the number of registered hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// InvokeHook triggers the registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

// AccessDetail describes one byte access.
type AccessDetail struct {
	PID      PID
	Logical  LogicalAddress
	Linear   LinearAddress
	Physical PhysicalAddress
	Write    bool
	Value    byte
}

// FaultDetail describes a served page fault.
type FaultDetail struct {
	PID        PID
	Page       uint32
	Frame      uint32
	FromFree   bool
	FaultCount uint64
}

// EvictDetail describes a page written back to swap to free its frame.
type EvictDetail struct {
	PID   PID
	Page  uint32
	Frame uint32
}

// SegmentDetail describes a segment table change.
type SegmentDetail struct {
	PID        PID
	Segment    uint32
	Descriptor SegmentDescriptor
	Frames     int
}
