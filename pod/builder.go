package pod

import "encoding/binary"

// Builder appends a POD tree into a caller-supplied byte buffer. It
// maintains a stack of open frames — containers whose size header is
// not yet known — and patches each frame's header on Close, per spec
// §4.B. A Builder is not safe for concurrent use and carries no
// interior mutability beyond its own cursor/frame stack.
type Builder struct {
	raw      []byte // sized to capacity; writes beyond capacity are no-ops
	capacity int
	cursor   int // logical write position; may exceed capacity while overflowing
	overflow bool
	frames   []frame
}

type frame struct {
	offset    int  // byte offset of this frame's 8-byte header
	kind      Type // Struct, Array, Object, Choice, Sequence, or Property
	childType Type
	childSize uint32
	count     int
}

// NewBuilder wraps buf for construction. Only cap(buf) is used as the
// writable capacity; len(buf) is irrelevant — Builder treats the whole
// capacity as available and reports Bytes() up to the logical cursor.
func NewBuilder(buf []byte) *Builder {
	capacity := cap(buf)
	return &Builder{raw: buf[:capacity:capacity], capacity: capacity}
}

// Required reports the number of bytes the tree built so far would
// need — meaningful even mid-overflow, and exactly what a retry with a
// larger buffer needs once the outermost frame is closed.
func (b *Builder) Required() int {
	return b.cursor
}

// Overflow reports whether any write has exceeded the destination
// buffer's capacity.
func (b *Builder) Overflow() bool {
	return b.overflow
}

// Bytes returns the encoded tree. It fails with an *OverflowError if
// the buffer was too small; Close on the outermost frame surfaces the
// same error, so most callers won't need to call this separately.
func (b *Builder) Bytes() ([]byte, error) {
	if len(b.frames) != 0 {
		return nil, shapeErr("tree has unclosed frames")
	}
	if b.overflow {
		return nil, &OverflowError{Required: b.cursor}
	}
	return b.raw[:b.cursor], nil
}

func (b *Builder) write(p []byte) {
	end := b.cursor + len(p)
	if end <= b.capacity {
		copy(b.raw[b.cursor:end], p)
	} else {
		b.overflow = true
	}
	b.cursor = end
	if end > b.capacity {
		b.overflow = true
	}
}

func (b *Builder) patch(offset int, p []byte) {
	end := offset + len(p)
	if end <= b.capacity {
		copy(b.raw[offset:end], p)
	}
}

func putU32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func putU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func (b *Builder) top() (*frame, bool) {
	if len(b.frames) == 0 {
		return nil, false
	}
	return &b.frames[len(b.frames)-1], true
}

// openFrame writes the 8-byte (size, type) placeholder header at the
// current cursor and pushes a frame recording where it started.
func (b *Builder) openFrame(kind Type) *frame {
	offset := b.cursor
	b.write(putU32(0))
	b.write(putU32(uint32(kind)))
	b.frames = append(b.frames, frame{offset: offset, kind: kind})
	return &b.frames[len(b.frames)-1]
}

// OpenStruct opens a Struct container: an ordered sequence of
// arbitrary tagged children.
func (b *Builder) OpenStruct() {
	b.openFrame(TypeStruct)
}

// OpenArray opens an Array of N homogeneous fixed-size primitives.
// childType must be a fixed-size primitive whose body is exactly
// childSize bytes (I4); violations fail before any bytes are written.
func (b *Builder) OpenArray(childType Type, childSize uint32) error {
	if fixedSize(childType) == 0 || fixedSize(childType) != childSize {
		return shapeErr("array child type is not a fixed-size primitive of the declared size")
	}
	f := b.openFrame(TypeArray)
	f.childType = childType
	f.childSize = childSize
	b.write(putU32(childSize))
	b.write(putU32(uint32(childType)))
	return nil
}

// OpenObject opens an Object carrying (object_type, object_id)
// followed by Property children.
func (b *Builder) OpenObject(objectType, objectID uint32) {
	b.openFrame(TypeObject)
	b.write(putU32(objectType))
	b.write(putU32(objectID))
}

// OpenProperty opens a Property — legal only directly inside an
// Object frame (I3); it must be closed after exactly one value POD is
// written into it.
func (b *Builder) OpenProperty(key uint32, flags PropFlag) error {
	parent, ok := b.top()
	if !ok || parent.kind != TypeObject {
		return shapeErr("property frame requires an open Object as its parent")
	}
	b.openFrame(TypeProperty)
	b.write(putU32(key))
	b.write(putU32(uint32(flags)))
	parent.count++
	return nil
}

// OpenChoice opens a Choice: a preferred value followed by
// choiceType-dependent alternatives, all of one fixed-size primitive
// type. The child type/size are not known until the first element is
// written, so the (child_size, child_type) sub-header is reserved here
// and patched on Close alongside the outer size.
func (b *Builder) OpenChoice(choiceType ChoiceType, flags uint32) {
	b.openFrame(TypeChoice)
	b.write(putU32(uint32(choiceType)))
	b.write(putU32(flags))
	b.write(putU32(0)) // child_size placeholder, patched on Close
	b.write(putU32(0)) // child_type placeholder, patched on Close
}

// OpenSequence opens a timestamped control stream: (unit, pad) then a
// series of (offset, type, body) entries, each entry itself an
// 8-byte-aligned tagged POD so I1 holds uniformly through the tree.
func (b *Builder) OpenSequence(unit uint32) {
	b.openFrame(TypeSequence)
	b.write(putU32(unit))
	b.write(putU32(0))
}

// SequenceControl appends one (offset, type, value) entry to an open
// Sequence frame.
func (b *Builder) SequenceControl(offsetTicks uint32, t Type, body []byte) error {
	parent, ok := b.top()
	if !ok || parent.kind != TypeSequence {
		return shapeErr("sequence control entry requires an open Sequence frame")
	}
	b.write(putU32(offsetTicks))
	b.write(putU32(0))
	return b.Primitive(t, body)
}

// Close pops the topmost frame, computes its body size from the
// cursor, patches the header, and emits zero padding to the next
// 8-byte boundary. Close is the only operation that writes behind the
// cursor. Closing the outermost frame surfaces *OverflowError if the
// buffer was ever too small.
func (b *Builder) Close() error {
	n := len(b.frames)
	if n == 0 {
		return shapeErr("close without a matching open")
	}
	f := b.frames[n-1]
	b.frames = b.frames[:n-1]

	bodyStart := f.offset + HeaderSize
	size := uint32(b.cursor - bodyStart)

	if f.kind == TypeChoice {
		choiceType := binary.LittleEndian.Uint32(safeRead(b.raw, f.offset+HeaderSize, 4, b.capacity))
		if ChoiceType(choiceType) == ChoiceNone && f.count != 1 {
			return shapeErr("choice with choice_type=None must contain exactly one element")
		}
		b.patch(f.offset+HeaderSize+8, putU32(f.childSize))
		b.patch(f.offset+HeaderSize+8+4, putU32(uint32(f.childType)))
	}

	b.patch(f.offset, putU32(size))
	b.patch(f.offset+4, putU32(uint32(f.kind)))

	padded := align8(size)
	if pad := int(padded - size); pad > 0 {
		b.write(make([]byte, pad))
	}

	if len(b.frames) == 0 && b.overflow {
		return &OverflowError{Required: b.cursor}
	}
	return nil
}

func safeRead(buf []byte, offset, n, capacity int) []byte {
	if offset+n > capacity || offset+n > len(buf) {
		return make([]byte, n)
	}
	return buf[offset : offset+n]
}

// Primitive writes a tagged primitive value: an 8-byte header followed
// by body and alignment padding. Use this for Struct/Object/Property
// children; use RawElement inside Array/Choice frames, where the tag
// is implied by the container (spec's "raw").
func (b *Builder) Primitive(t Type, body []byte) error {
	if parent, ok := b.top(); ok && (parent.kind == TypeArray || parent.kind == TypeChoice) {
		return shapeErr("use RawElement for Array/Choice children, not Primitive")
	}
	offset := b.cursor
	b.write(putU32(uint32(len(body))))
	b.write(putU32(uint32(t)))
	b.write(body)
	padded := align8(uint32(len(body)))
	if pad := int(padded) - len(body); pad > 0 {
		b.write(make([]byte, pad))
	}
	_ = offset
	return nil
}

// RawElement appends one untagged element inside an open Array or
// Choice frame. For Array, t/len(body) must match the type/size
// declared at OpenArray. For Choice, the first element establishes the
// child type/size; later elements must match it. Violations fail
// before any bytes are written (nesting invariants, spec §4.B).
func (b *Builder) RawElement(t Type, body []byte) error {
	parent, ok := b.top()
	if !ok || (parent.kind != TypeArray && parent.kind != TypeChoice) {
		return shapeErr("RawElement requires an open Array or Choice frame")
	}
	if parent.kind == TypeArray {
		if t != parent.childType || uint32(len(body)) != parent.childSize {
			return shapeErr("array element type/size does not match the declared child type")
		}
	} else { // Choice
		if parent.count == 0 {
			parent.childType = t
			parent.childSize = uint32(len(body))
		} else if t != parent.childType || uint32(len(body)) != parent.childSize {
			return shapeErr("choice element type/size does not match the first element")
		}
	}
	parent.count++
	// Elements are packed tightly, with no per-element padding — the
	// whole container body is padded once, as a unit, on Close.
	b.write(body)
	return nil
}

// Typed convenience helpers. Each picks Primitive or RawElement
// automatically depending on whether the current frame is an
// Array/Choice element stream or an ordinary tagged-child context;
// String and ByteArray have no fixed size and always write a tagged
// Primitive. This matches spec §9's preference for "a typed chainable builder" over a
// format-string API.

func (b *Builder) element(t Type, body []byte) error {
	if parent, ok := b.top(); ok && (parent.kind == TypeArray || parent.kind == TypeChoice) {
		return b.RawElement(t, body)
	}
	return b.Primitive(t, body)
}

func (b *Builder) Bool(v bool) error {
	n := uint32(0)
	if v {
		n = 1
	}
	return b.element(TypeBool, putU32(n))
}

func (b *Builder) ID(id uint32) error { return b.element(TypeID, putU32(id)) }

func (b *Builder) Int(v int32) error { return b.element(TypeInt, putU32(uint32(v))) }

func (b *Builder) Long(v int64) error { return b.element(TypeLong, putU64(uint64(v))) }

func (b *Builder) Float(v float32) error {
	return b.element(TypeFloat, putU32(float32bits(v)))
}

func (b *Builder) Double(v float64) error {
	return b.element(TypeDouble, putU64(float64bits(v)))
}

func (b *Builder) String(s string) error {
	body := append([]byte(s), 0)
	return b.Primitive(TypeString, body)
}

func (b *Builder) ByteArray(data []byte) error {
	return b.Primitive(TypeBytes, data)
}

func (b *Builder) Pointer(t Type, ptr uint64) error {
	body := append(putU32(uint32(t)), putU64(ptr)...)
	return b.element(TypePointer, body)
}

func (b *Builder) Fd(fd int32) error { return b.element(TypeFd, putU32(uint32(fd))) }

func (b *Builder) Rectangle(width, height uint32) error {
	body := append(putU32(width), putU32(height)...)
	return b.element(TypeRectangle, body)
}

func (b *Builder) Fraction(num, denom uint32) error {
	body := append(putU32(num), putU32(denom)...)
	return b.element(TypeFraction, body)
}
