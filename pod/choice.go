package pod

import "encoding/binary"

// ChoiceView is the uniform decoded view of a Choice or a bare value:
// N elements of a single element type, the first being the preferred
// or default value. A bare value decodes to a single-element ChoiceNone
// view, matching get_values' synthesis rule (spec §4.C).
type ChoiceView struct {
	Type     ChoiceType
	Elem     Type
	Elements [][]byte // each exactly one element's raw body bytes
}

// DecodeChoice parses value — the header-included bytes of a Property
// value, or any standalone POD — into a ChoiceView.
func DecodeChoice(value []byte) (ChoiceView, error) {
	if len(value) < HeaderSize {
		return ChoiceView{}, malformed(0, "truncated header")
	}
	size := binary.LittleEndian.Uint32(value[0:4])
	typ := Type(binary.LittleEndian.Uint32(value[4:8]))
	if HeaderSize+int(size) > len(value) {
		return ChoiceView{}, malformed(0, "body overruns value")
	}

	if typ != TypeChoice {
		return ChoiceView{
			Type:     ChoiceNone,
			Elem:     typ,
			Elements: [][]byte{value[HeaderSize : HeaderSize+int(size)]},
		}, nil
	}

	if size < 16 {
		return ChoiceView{}, malformed(0, "choice sub-header truncated")
	}
	choiceType := ChoiceType(binary.LittleEndian.Uint32(value[HeaderSize : HeaderSize+4]))
	childSize := binary.LittleEndian.Uint32(value[HeaderSize+8 : HeaderSize+12])
	childType := Type(binary.LittleEndian.Uint32(value[HeaderSize+12 : HeaderSize+16]))
	stream := value[HeaderSize+16 : HeaderSize+int(size)]
	if childSize == 0 || len(stream)%int(childSize) != 0 {
		return ChoiceView{}, malformed(0, "choice element stream not a multiple of child_size")
	}
	n := len(stream) / int(childSize)
	elements := make([][]byte, n)
	for i := 0; i < n; i++ {
		elements[i] = stream[i*int(childSize) : (i+1)*int(childSize)]
	}
	return ChoiceView{Type: choiceType, Elem: childType, Elements: elements}, nil
}

// WriteTo encodes v back into b: a bare primitive for ChoiceNone, or a
// full Choice container otherwise. b must be positioned wherever the
// resulting value belongs (directly, or inside an open Property).
func (v ChoiceView) WriteTo(b *Builder) error {
	if v.Type == ChoiceNone {
		if len(v.Elements) != 1 {
			return shapeErr("choice_type=None view must carry exactly one element")
		}
		return b.Primitive(v.Elem, v.Elements[0])
	}
	b.OpenChoice(v.Type, 0)
	for _, e := range v.Elements {
		if err := b.RawElement(v.Elem, e); err != nil {
			return err
		}
	}
	return b.Close()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// numericValue interprets a fixed-size element as a number, for the
// ordering Range/Step filtering needs. Rectangle/Fraction/Pointer/Bool
// carry no natural order and are rejected.
func numericValue(t Type, raw []byte) (float64, error) {
	switch t {
	case TypeInt:
		return float64(int32(binary.LittleEndian.Uint32(raw))), nil
	case TypeID, TypeFd:
		return float64(binary.LittleEndian.Uint32(raw)), nil
	case TypeLong:
		return float64(int64(binary.LittleEndian.Uint64(raw))), nil
	case TypeFloat:
		return float64(float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case TypeDouble:
		return float64frombits(binary.LittleEndian.Uint64(raw)), nil
	default:
		return 0, shapeErr("choice element type has no natural ordering: " + t.String())
	}
}

func encodeNumber(t Type, v float64) []byte {
	switch t {
	case TypeInt:
		return putU32(uint32(int32(v)))
	case TypeID, TypeFd:
		return putU32(uint32(v))
	case TypeLong:
		return putU64(uint64(int64(v)))
	case TypeFloat:
		return putU32(float32bits(float32(v)))
	case TypeDouble:
		return putU64(float64bits(v))
	default:
		return nil
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Filter computes the property-filter intersection of two values (spec
// §4.D), each the header-included bytes of a Property value or bare
// POD. It is a pure function: neither input is mutated, and the result
// is a freshly built ChoiceView the caller encodes wherever it likes.
func Filter(a, b []byte) (ChoiceView, error) {
	av, err := DecodeChoice(a)
	if err != nil {
		return ChoiceView{}, err
	}
	bv, err := DecodeChoice(b)
	if err != nil {
		return ChoiceView{}, err
	}
	return filterViews(av, bv)
}

func filterViews(a, b ChoiceView) (ChoiceView, error) {
	if a.Type == ChoiceNone && b.Type == ChoiceNone {
		return a, nil
	}
	if a.Type == ChoiceNone {
		return b, nil
	}
	if b.Type == ChoiceNone {
		return a, nil
	}
	switch {
	case a.Type == ChoiceEnum && b.Type == ChoiceEnum:
		return filterEnumEnum(a, b)
	case a.Type == ChoiceRange && b.Type == ChoiceRange:
		return filterRangeRange(a, b)
	case a.Type == ChoiceEnum && b.Type == ChoiceRange:
		return filterEnumRange(a, b)
	case a.Type == ChoiceRange && b.Type == ChoiceEnum:
		return filterEnumRange(b, a)
	case a.Type == ChoiceStep && b.Type == ChoiceStep:
		return filterStepStep(a, b)
	case a.Type == ChoiceFlags && b.Type == ChoiceFlags:
		return filterFlagsFlags(a, b)
	default:
		return ChoiceView{}, shapeErr("unsupported choice type combination for filter: " + a.Type.String() + "/" + b.Type.String())
	}
}

// filterEnumEnum intersects by value equality, preserving a's order.
func filterEnumEnum(a, b ChoiceView) (ChoiceView, error) {
	var out [][]byte
	for _, ea := range a.Elements {
		for _, eb := range b.Elements {
			if bytesEqual(ea, eb) {
				out = append(out, ea)
				break
			}
		}
	}
	if len(out) == 0 {
		return ChoiceView{}, ErrNoIntersection
	}
	return ChoiceView{Type: ChoiceEnum, Elem: a.Elem, Elements: out}, nil
}

// filterEnumRange keeps enum elements whose value lies in [min, max].
func filterEnumRange(enum, rng ChoiceView) (ChoiceView, error) {
	if len(rng.Elements) != 3 {
		return ChoiceView{}, shapeErr("range choice must have exactly 3 elements")
	}
	min, err := numericValue(rng.Elem, rng.Elements[1])
	if err != nil {
		return ChoiceView{}, err
	}
	max, err := numericValue(rng.Elem, rng.Elements[2])
	if err != nil {
		return ChoiceView{}, err
	}
	var out [][]byte
	for _, e := range enum.Elements {
		v, err := numericValue(enum.Elem, e)
		if err != nil {
			return ChoiceView{}, err
		}
		if v >= min && v <= max {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return ChoiceView{}, ErrNoIntersection
	}
	return ChoiceView{Type: ChoiceEnum, Elem: enum.Elem, Elements: out}, nil
}

// filterRangeRange narrows two ranges to their overlap, clamping the
// combined default into the surviving bounds.
func filterRangeRange(a, b ChoiceView) (ChoiceView, error) {
	if len(a.Elements) != 3 || len(b.Elements) != 3 {
		return ChoiceView{}, shapeErr("range choice must have exactly 3 elements")
	}
	def1, _ := numericValue(a.Elem, a.Elements[0])
	def2, _ := numericValue(b.Elem, b.Elements[0])
	min1, _ := numericValue(a.Elem, a.Elements[1])
	min2, _ := numericValue(b.Elem, b.Elements[1])
	max1, _ := numericValue(a.Elem, a.Elements[2])
	max2, _ := numericValue(b.Elem, b.Elements[2])

	min := maxFloat(min1, min2)
	max := minFloat(max1, max2)
	if min > max {
		return ChoiceView{}, ErrNoIntersection
	}
	def := maxFloat(def1, def2)
	if def < min {
		def = min
	}
	if def > max {
		def = max
	}
	return ChoiceView{
		Type: ChoiceRange,
		Elem: a.Elem,
		Elements: [][]byte{
			encodeNumber(a.Elem, def),
			encodeNumber(a.Elem, min),
			encodeNumber(a.Elem, max),
		},
	}, nil
}

// filterStepStep narrows the [default,min,max] triple as filterRangeRange
// does and takes the coarser (larger) of the two steps, since a value
// satisfying both quantizations must satisfy the coarser one at least.
func filterStepStep(a, b ChoiceView) (ChoiceView, error) {
	if len(a.Elements) != 4 || len(b.Elements) != 4 {
		return ChoiceView{}, shapeErr("step choice must have exactly 4 elements")
	}
	rangeView, err := filterRangeRange(
		ChoiceView{Type: ChoiceRange, Elem: a.Elem, Elements: a.Elements[:3]},
		ChoiceView{Type: ChoiceRange, Elem: b.Elem, Elements: b.Elements[:3]},
	)
	if err != nil {
		return ChoiceView{}, err
	}
	step1, err := numericValue(a.Elem, a.Elements[3])
	if err != nil {
		return ChoiceView{}, err
	}
	step2, err := numericValue(b.Elem, b.Elements[3])
	if err != nil {
		return ChoiceView{}, err
	}
	step := maxFloat(step1, step2)
	return ChoiceView{
		Type:     ChoiceStep,
		Elem:     a.Elem,
		Elements: append(rangeView.Elements, encodeNumber(a.Elem, step)),
	}, nil
}

// filterFlagsFlags treats Flags like Enum: masks intersect by equality,
// preserving a's order (spec §4.D "analogous mono-dimensional rules").
func filterFlagsFlags(a, b ChoiceView) (ChoiceView, error) {
	v, err := filterEnumEnum(a, b)
	if err != nil {
		return ChoiceView{}, err
	}
	v.Type = ChoiceFlags
	return v, nil
}
