// Package pod implements the tagged, self-delimiting binary value
// codec used to describe parameters and objects exchanged with a
// multimedia graph daemon: a fixed 8-byte header (size, type) followed
// by an 8-byte-aligned body.
package pod

// Type is the wire-level tag selecting a POD variant. Values carry no
// language meaning beyond the closed set below.
type Type uint32

const (
	TypeNone Type = iota
	TypeBool
	TypeID
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeString
	TypeBytes
	TypePointer
	TypeFd
	TypeRectangle
	TypeFraction
	TypeArray
	TypeStruct
	TypeObject
	TypeProperty
	TypeChoice
	TypeSequence
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeBool:
		return "Bool"
	case TypeID:
		return "Id"
	case TypeInt:
		return "Int"
	case TypeLong:
		return "Long"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeBytes:
		return "Bytes"
	case TypePointer:
		return "Pointer"
	case TypeFd:
		return "Fd"
	case TypeRectangle:
		return "Rectangle"
	case TypeFraction:
		return "Fraction"
	case TypeArray:
		return "Array"
	case TypeStruct:
		return "Struct"
	case TypeObject:
		return "Object"
	case TypeProperty:
		return "Property"
	case TypeChoice:
		return "Choice"
	case TypeSequence:
		return "Sequence"
	default:
		return "Unknown"
	}
}

// fixedSize reports the body size of primitive, fixed-width types —
// the only types legal as Array/Choice elements (I4). Zero means the
// type has no fixed size and cannot appear as a container element.
func fixedSize(t Type) uint32 {
	switch t {
	case TypeNone:
		return 0
	case TypeBool, TypeID, TypeInt, TypeFloat, TypeFd:
		return 4
	case TypeLong, TypeDouble:
		return 8
	case TypeRectangle, TypeFraction:
		return 8
	case TypePointer:
		// 4-byte pointee type tag + 8-byte pointer value (Builder.Pointer,
		// Parser.GetPointer) — not 8, unlike the other wide scalars above.
		return 12
	default:
		return 0
	}
}

// HeaderSize is the fixed 8-byte (size:u32, type:u32) header preceding
// every POD's body.
const HeaderSize = 8

// align8 rounds n up to the next multiple of 8, per I1.
func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// Align8 is align8 exported for packages (remap, protocol) that need
// to compute a POD's on-wire footprint without a Builder or Parser at
// hand.
func Align8(n uint32) uint32 { return align8(n) }

// ChoiceType selects the constraint discipline over a Choice's
// alternatives (spec §3 Choice semantics).
type ChoiceType uint32

const (
	ChoiceNone ChoiceType = iota
	ChoiceRange
	ChoiceStep
	ChoiceEnum
	ChoiceFlags
)

func (c ChoiceType) String() string {
	switch c {
	case ChoiceNone:
		return "None"
	case ChoiceRange:
		return "Range"
	case ChoiceStep:
		return "Step"
	case ChoiceEnum:
		return "Enum"
	case ChoiceFlags:
		return "Flags"
	default:
		return "Unknown"
	}
}

// PropFlag is the v2 property bitmask (spec §3 "Property flags").
type PropFlag uint32

const (
	PropRead PropFlag = 1 << iota
	PropWrite
	PropSerial
)

// Has reports whether all bits of want are set in f.
func (f PropFlag) Has(want PropFlag) bool {
	return f&want == want
}
