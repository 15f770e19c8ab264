// Package guest hands out ranges of wasm linear memory as reference counted
// regions.
//
// An Arena is a first-fit allocator over a wazero api.Memory. New builds a
// runtime with a single exported memory; Wrap adopts a memory from a module
// the caller instantiated.
//
//	arena, err := guest.New(ctx, guest.WithPages(1, 4))
//	defer arena.Close(ctx)
//
//	r, err := arena.Region(64, 8)   // ptr.Shared[guest.Region]
//	r.Get().Write(0, payload)
//	w := ptr.WeakFrom(r)
//	r.Release()                     // region returns to the arena
//
// # Memory Growth
//
// Allocation grows the memory page-wise when no free range fits. Growth
// beyond the memory's declared maximum fails with an allocation error.
//
// # WIT Layouts
//
// RegionFor sizes and aligns a region with the canonical ABI layout of a WIT
// type, so a region can hold a value in the form a component expects:
//
//	point := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
//	    {Name: "x", Type: wit.S32{}},
//	    {Name: "y", Type: wit.S32{}},
//	}}}
//	r, err := arena.RegionFor(point) // 8 bytes, align 4
//
// Offset 0 is never handed out.
package guest
