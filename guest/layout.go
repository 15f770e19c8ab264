package guest

import (
	"sync"

	"go.bytecodealliance.org/wit"
)

// Layout is the canonical ABI size and alignment of a WIT type in linear
// memory.
type Layout struct {
	Size  uint32
	Align uint32
}

// Calculator computes layouts, caching type definitions it has already
// seen. It is safe for concurrent use.
type Calculator struct {
	mu    sync.Mutex
	cache map[*wit.TypeDef]Layout
}

func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[*wit.TypeDef]Layout)}
}

// LayoutOf returns the canonical ABI layout of t without retaining a cache.
func LayoutOf(t wit.Type) Layout {
	return NewCalculator().Layout(t)
}

// Layout returns the canonical ABI layout of t. Unknown types have size 0.
func (c *Calculator) Layout(t wit.Type) Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout(t)
}

// Cached returns the number of type definitions in the cache.
func (c *Calculator) Cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Calculator) layout(t wit.Type) Layout {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Layout{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Layout{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Layout{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Layout{Size: 8, Align: 8}
	case wit.String:
		return Layout{Size: 8, Align: 4} // ptr, len
	case *wit.TypeDef:
		return c.typeDefLayout(typ)
	default:
		return Layout{Size: 0, Align: 1}
	}
}

func (c *Calculator) typeDefLayout(t *wit.TypeDef) Layout {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var l Layout
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		l = c.sequenceLayout(types)
	case *wit.Tuple:
		l = c.sequenceLayout(kind.Types)
	case *wit.Variant:
		cases := make([]wit.Type, len(kind.Cases))
		for i, kc := range kind.Cases {
			cases[i] = kc.Type
		}
		if len(cases) == 0 {
			l = Layout{Size: 0, Align: 1}
		} else {
			l = c.taggedLayout(discriminantSize(len(cases)), cases...)
		}
	case *wit.Enum:
		size := discriminantSize(len(kind.Cases))
		l = Layout{Size: size, Align: size}
	case *wit.Option:
		l = c.taggedLayout(1, kind.Type)
	case *wit.Result:
		l = c.taggedLayout(1, kind.OK, kind.Err)
	case *wit.List:
		l = Layout{Size: 8, Align: 4}
	case *wit.Flags:
		l = flagsLayout(len(kind.Flags))
	case *wit.Own, *wit.Borrow:
		l = Layout{Size: 4, Align: 4} // i32 handle
	case wit.Type:
		l = c.layout(kind)
	default:
		l = Layout{Size: 0, Align: 1}
	}

	c.cache[t] = l
	return l
}

func (c *Calculator) sequenceLayout(types []wit.Type) Layout {
	if len(types) == 0 {
		return Layout{Size: 0, Align: 1}
	}

	maxAlign := uint32(1)
	offset := uint32(0)
	for _, typ := range types {
		fl := c.layout(typ)
		offset = alignTo(offset, fl.Align)
		if fl.Align > maxAlign {
			maxAlign = fl.Align
		}
		offset += fl.Size
	}
	return Layout{Size: alignTo(offset, maxAlign), Align: maxAlign}
}

// taggedLayout lays out a discriminant followed by the largest case. Nil
// case types carry no payload.
func (c *Calculator) taggedLayout(discSize uint32, cases ...wit.Type) Layout {
	maxAlign := discSize
	maxSize := uint32(0)
	for _, typ := range cases {
		if typ == nil {
			continue
		}
		cl := c.layout(typ)
		if cl.Align > maxAlign {
			maxAlign = cl.Align
		}
		if cl.Size > maxSize {
			maxSize = cl.Size
		}
	}

	payloadOffset := alignTo(discSize, maxAlign)
	return Layout{Size: alignTo(payloadOffset+maxSize, maxAlign), Align: maxAlign}
}

func flagsLayout(n int) Layout {
	switch {
	case n == 0:
		return Layout{Size: 0, Align: 1}
	case n <= 8:
		return Layout{Size: 1, Align: 1}
	case n <= 16:
		return Layout{Size: 2, Align: 2}
	case n <= 32:
		return Layout{Size: 4, Align: 4}
	case n <= 64:
		return Layout{Size: 8, Align: 8}
	}
	// >64 flags: one u32 per 32 flags
	return Layout{Size: uint32((n+31)/32) * 4, Align: 4}
}

func discriminantSize(numCases int) uint32 {
	if numCases <= 256 {
		return 1
	} else if numCases <= 65536 {
		return 2
	}
	return 4
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
