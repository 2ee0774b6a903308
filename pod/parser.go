package pod

import "encoding/binary"

// Parser is a structural cursor over an existing, already-validated-
// on-the-wire POD tree. It borrows the underlying byte slice for the
// duration of traversal: scalar reads copy, string/bytes reads return
// slices into the caller's buffer. A Parser is not safe for concurrent
// use.
type Parser struct {
	buf    []byte
	pos    int
	frames []parserFrame
}

type parserFrame struct {
	kind       Type
	headerOff  int // absolute offset of this container's 8-byte header
	bodyStart  int // headerOff + HeaderSize
	end        int // absolute offset where this container's body ends
	childType  Type
	childSize  uint32
	// for Object: exposed fields
	objectType, objectID uint32
	// for Choice: exposed fields
	choiceType ChoiceType
	choiceFlag uint32
	// for Sequence:
	unit uint32
}

// NewParser positions a Parser at the start of buf, which must begin
// with a POD header.
func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

// Offset reports the current absolute byte offset, for error reporting
// and tests.
func (p *Parser) Offset() int { return p.pos }

func (p *Parser) limit() int {
	if n := len(p.frames); n > 0 {
		return p.frames[n-1].end
	}
	return len(p.buf)
}

// peekHeader reads the 8-byte header at the current position without
// advancing, validating I2 (child lies entirely within its parent).
func (p *Parser) peekHeader() (size uint32, typ Type, err error) {
	limit := p.limit()
	if p.pos+HeaderSize > limit {
		return 0, 0, malformed(p.pos, "truncated header")
	}
	size = binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
	typ = Type(binary.LittleEndian.Uint32(p.buf[p.pos+4 : p.pos+8]))
	if p.pos+HeaderSize+int(size) > limit {
		return 0, 0, malformed(p.pos, "body overruns parent")
	}
	return
}

// PeekType reports the tag of the value at the current position
// without advancing.
func (p *Parser) PeekType() (Type, error) {
	_, t, err := p.peekHeader()
	return t, err
}

// HasNext reports whether another child remains in the currently open
// container. At the root (no open container) it reports whether any
// bytes remain unconsumed.
func (p *Parser) HasNext() bool {
	if n := len(p.frames); n > 0 {
		f := &p.frames[n-1]
		if f.kind == TypeArray || f.kind == TypeChoice {
			return p.pos+int(f.childSize) <= f.end
		}
		return p.pos < f.end
	}
	return p.pos < len(p.buf)
}

// Next is a convenience wrapper: it reports ErrEnd once the current
// container's children are exhausted, nil otherwise. It does not
// itself advance the cursor — typed getters and Enter do that.
func (p *Parser) Next() error {
	if !p.HasNext() {
		return ErrEnd
	}
	return nil
}

func (p *Parser) readTagged(expected Type) ([]byte, error) {
	offset := p.pos
	size, typ, err := p.peekHeader()
	if err != nil {
		return nil, err
	}
	if typ != expected {
		return nil, typeMismatch(expected, typ)
	}
	bodyStart := offset + HeaderSize
	body := p.buf[bodyStart : bodyStart+int(size)]
	// Tagged children are individually padded to the next 8-byte
	// boundary, measured from their own header (I1).
	p.pos = bodyStart + int(align8(size))
	return body, nil
}

// readElement reads one untagged element from an open Array/Choice
// frame, checked against the container's declared child type.
func (p *Parser) readElement(expected Type) ([]byte, error) {
	f, ok := p.top()
	if !ok || (f.kind != TypeArray && f.kind != TypeChoice) {
		return nil, shapeErr("element read requires an open Array or Choice frame")
	}
	if f.childType != expected {
		return nil, typeMismatch(expected, f.childType)
	}
	if p.pos+int(f.childSize) > f.end {
		return nil, malformed(p.pos, "array/choice element overruns container")
	}
	body := p.buf[p.pos : p.pos+int(f.childSize)]
	p.pos += int(f.childSize)
	return body, nil
}

func (p *Parser) top() (*parserFrame, bool) {
	if len(p.frames) == 0 {
		return nil, false
	}
	return &p.frames[len(p.frames)-1], true
}

func (p *Parser) inElementFrame() bool {
	f, ok := p.top()
	return ok && (f.kind == TypeArray || f.kind == TypeChoice)
}

// value reads a scalar, transparently choosing a tagged read (inside
// Struct/Object/Property, or at the root) or an untagged element read
// (inside Array/Choice).
func (p *Parser) value(expected Type) ([]byte, error) {
	if p.inElementFrame() {
		return p.readElement(expected)
	}
	return p.readTagged(expected)
}

func (p *Parser) GetBool() (bool, error) {
	b, err := p.value(TypeBool)
	if err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(b) != 0, nil
}

func (p *Parser) GetID() (uint32, error) {
	b, err := p.value(TypeID)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (p *Parser) GetInt() (int32, error) {
	b, err := p.value(TypeInt)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (p *Parser) GetLong() (int64, error) {
	b, err := p.value(TypeLong)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (p *Parser) GetFloat() (float32, error) {
	b, err := p.value(TypeFloat)
	if err != nil {
		return 0, err
	}
	return float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (p *Parser) GetDouble() (float64, error) {
	b, err := p.value(TypeDouble)
	if err != nil {
		return 0, err
	}
	return float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// GetString reads a NUL-terminated UTF-8 string (I7), returning it
// without the terminator. The returned string is a copy (Go's
// []byte-to-string conversion copies), so it remains valid independent
// of further traversal and of the underlying buffer.
func (p *Parser) GetString() (string, error) {
	b, err := p.readTagged(TypeString)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", malformed(p.pos, "string body empty, violates I7")
	}
	if b[len(b)-1] != 0 {
		return "", malformed(p.pos, "string not NUL-terminated")
	}
	return string(b[:len(b)-1]), nil
}

// GetBytes reads an opaque byte array, returning a slice that aliases
// the Parser's underlying buffer. Callers that need the data to
// outlive the buffer must copy it.
func (p *Parser) GetBytes() ([]byte, error) {
	return p.readTagged(TypeBytes)
}

func (p *Parser) GetFd() (int32, error) {
	b, err := p.value(TypeFd)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (p *Parser) GetRectangle() (width, height uint32, err error) {
	b, err := p.value(TypeRectangle)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), nil
}

func (p *Parser) GetFraction() (num, denom uint32, err error) {
	b, err := p.value(TypeFraction)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), nil
}

func (p *Parser) GetPointer() (t Type, ptr uint64, err error) {
	b, err := p.value(TypePointer)
	if err != nil {
		return 0, 0, err
	}
	return Type(binary.LittleEndian.Uint32(b[0:4])), binary.LittleEndian.Uint64(b[4:12]), nil
}

// Enter opens the container at the current position — Struct, Array,
// Object, Choice, or Sequence — and positions the cursor at its first
// child. Leave must be called once its children are consumed.
func (p *Parser) Enter() error {
	offset := p.pos
	size, typ, err := p.peekHeader()
	if err != nil {
		return err
	}
	bodyStart := offset + HeaderSize
	bodyEnd := bodyStart + int(size)

	f := parserFrame{kind: typ, headerOff: offset, bodyStart: bodyStart, end: bodyEnd}
	p.pos = bodyStart

	switch typ {
	case TypeArray:
		if p.pos+8 > bodyEnd {
			return malformed(p.pos, "array sub-header truncated")
		}
		f.childSize = binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
		f.childType = Type(binary.LittleEndian.Uint32(p.buf[p.pos+4 : p.pos+8]))
		p.pos += 8
	case TypeChoice:
		if p.pos+16 > bodyEnd {
			return malformed(p.pos, "choice sub-header truncated")
		}
		f.choiceType = ChoiceType(binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4]))
		f.choiceFlag = binary.LittleEndian.Uint32(p.buf[p.pos+4 : p.pos+8])
		f.childSize = binary.LittleEndian.Uint32(p.buf[p.pos+8 : p.pos+12])
		f.childType = Type(binary.LittleEndian.Uint32(p.buf[p.pos+12 : p.pos+16]))
		p.pos += 16
	case TypeObject:
		if p.pos+8 > bodyEnd {
			return malformed(p.pos, "object sub-header truncated")
		}
		f.objectType = binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
		f.objectID = binary.LittleEndian.Uint32(p.buf[p.pos+4 : p.pos+8])
		p.pos += 8
	case TypeSequence:
		if p.pos+8 > bodyEnd {
			return malformed(p.pos, "sequence sub-header truncated")
		}
		f.unit = binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
		p.pos += 8
	case TypeStruct, TypeProperty:
		// no sub-header
	default:
		return shapeErr("Enter called on a non-container type: " + typ.String())
	}

	p.frames = append(p.frames, f)
	return nil
}

// Leave closes the current container, advancing the cursor past any
// remaining unread children and the container's own alignment padding.
func (p *Parser) Leave() error {
	n := len(p.frames)
	if n == 0 {
		return shapeErr("leave without a matching enter")
	}
	f := p.frames[n-1]
	p.frames = p.frames[:n-1]

	size := uint32(f.end - f.bodyStart)
	p.pos = f.bodyStart + int(align8(size))
	return nil
}

// ObjectHeader returns the (object_type, object_id) of the Object
// frame most recently entered with Enter.
func (p *Parser) ObjectHeader() (objectType, objectID uint32, ok bool) {
	f, has := p.top()
	if !has || f.kind != TypeObject {
		return 0, 0, false
	}
	return f.objectType, f.objectID, true
}

// ChoiceHeader returns the (choice_type, flags) of the Choice frame
// most recently entered with Enter.
func (p *Parser) ChoiceHeader() (choiceType ChoiceType, flags uint32, ok bool) {
	f, has := p.top()
	if !has || f.kind != TypeChoice {
		return 0, 0, false
	}
	return f.choiceType, f.choiceFlag, true
}

// SequenceUnit returns the unit field of the Sequence frame most
// recently entered with Enter.
func (p *Parser) SequenceUnit() (unit uint32, ok bool) {
	f, has := p.top()
	if !has || f.kind != TypeSequence {
		return 0, false
	}
	return f.unit, true
}

// Property describes one (key, flags, value) entry found inside an
// Object.
type Property struct {
	Key   uint32
	Flags PropFlag
	Value []byte // the value POD's bytes, header included
}

// ReadPropertyHeader reads the (key, flags) pair from the head of an
// open Property frame's body, advancing past them so the next read
// lands on the Property's single value POD. Callers that walk a tree
// generically (podctl's dump, say) use this instead of FindProp when
// they don't already know which key they're looking for.
func (p *Parser) ReadPropertyHeader() (key uint32, flags PropFlag, err error) {
	f, ok := p.top()
	if !ok || f.kind != TypeProperty {
		return 0, 0, shapeErr("ReadPropertyHeader requires an open Property frame")
	}
	if f.end-p.pos < 8 {
		return 0, 0, malformed(p.pos, "property header truncated")
	}
	key = binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
	flags = PropFlag(binary.LittleEndian.Uint32(p.buf[p.pos+4 : p.pos+8]))
	p.pos += 8
	return key, flags, nil
}

// FindProp linearly scans an Object's Property children for key,
// returning the first match (I6: readers MUST accept the first on
// duplicate keys). The Parser must be positioned immediately after
// Enter on the Object; FindProp restores that position when done.
func (p *Parser) FindProp(key uint32) (*Property, error) {
	f, ok := p.top()
	if !ok || f.kind != TypeObject {
		return nil, shapeErr("FindProp requires an open Object frame")
	}
	savedPos := p.pos
	savedFrames := len(p.frames)
	defer func() {
		p.pos = savedPos
		p.frames = p.frames[:savedFrames]
	}()

	for p.pos < f.end {
		if err := p.Enter(); err != nil { // enters the Property
			return nil, err
		}
		propFrame := p.frames[len(p.frames)-1]
		k, flags, err := p.ReadPropertyHeader()
		if err != nil {
			return nil, err
		}
		valueStart := p.pos
		if k == key {
			prop := &Property{Key: k, Flags: flags, Value: p.buf[valueStart:propFrame.end]}
			return prop, nil
		}
		if err := p.Leave(); err != nil {
			return nil, err
		}
	}
	return nil, ErrPropertyNotFound
}

// GetValues returns the uniform Choice view of a value (spec §4.C):
// if v is a Choice, its declared n-elements/choice-type/child POD; if
// it is a bare value, (1, None, v) is synthesized. v must be the raw
// bytes of a single POD (header included), e.g. a Property's Value.
// A Choice's child POD starts at its (child_size, child_type) pair,
// which serves as the child's header: read as a POD it yields the
// first (preferred) element, and the remaining elements follow it
// packed at child_size bytes each.
func GetValues(v []byte) (n int, choiceType ChoiceType, childPOD []byte, err error) {
	if len(v) < HeaderSize {
		return 0, 0, nil, malformed(0, "truncated header")
	}
	typ := Type(binary.LittleEndian.Uint32(v[4:8]))
	if typ != TypeChoice {
		return 1, ChoiceNone, v, nil
	}
	size := binary.LittleEndian.Uint32(v[0:4])
	if HeaderSize+int(size) > len(v) {
		return 0, 0, nil, malformed(0, "choice body overruns value")
	}
	if int(size) < 16 {
		return 0, 0, nil, malformed(0, "choice sub-header truncated")
	}
	choiceType = ChoiceType(binary.LittleEndian.Uint32(v[HeaderSize : HeaderSize+4]))
	childSize := binary.LittleEndian.Uint32(v[HeaderSize+8 : HeaderSize+12])
	childType := Type(binary.LittleEndian.Uint32(v[HeaderSize+12 : HeaderSize+16]))
	elementsStart := HeaderSize + 16
	elementsLen := int(size) - 16
	if childSize == 0 || elementsLen%int(childSize) != 0 {
		return 0, 0, nil, malformed(0, "choice element stream not a multiple of child_size")
	}
	n = elementsLen / int(childSize)
	_ = childType
	return n, choiceType, v[HeaderSize+8 : elementsStart+elementsLen], nil
}
