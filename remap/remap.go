package remap

import (
	"encoding/binary"

	"github.com/podwire/pod/pod"
)

// Object types and property keys the rewriter special-cases. These
// are v2 vocabulary values, independent of the wire-format type tags
// package pod defines.
const (
	ObjectTypeFormat  uint32 = 100
	ObjectTypeCommand uint32 = 101

	PropKeyMediaType    uint32 = 1
	PropKeyMediaSubtype uint32 = 2
)

// Legacy Prop flags packed READ/WRITE/SERIAL, an UNSET bit, and a
// 3-bit range-type field into one u32 (spec.md §3, §4.E). v2 only
// keeps READ/WRITE/SERIAL (pod.PropFlag, bits 0-2); the range-type
// field and UNSET exist only on the v0 side of the wire.
const (
	v0FlagUnset     uint32 = 1 << 3
	v0RangeShift           = 4
	v0RangeMask     uint32 = 0x7 << v0RangeShift
	v0RangeNone     uint32 = 0 << v0RangeShift
	v0RangeRange    uint32 = 1 << v0RangeShift
	v0RangeStep     uint32 = 2 << v0RangeShift
	v0RangeEnum     uint32 = 3 << v0RangeShift
	v0RangeFlagsBit uint32 = 4 << v0RangeShift
)

func rangeBitsToChoiceType(flags uint32, unset bool) pod.ChoiceType {
	if !unset {
		return pod.ChoiceNone
	}
	switch flags & v0RangeMask {
	case v0RangeRange:
		return pod.ChoiceRange
	case v0RangeStep:
		return pod.ChoiceStep
	case v0RangeEnum:
		return pod.ChoiceEnum
	case v0RangeFlagsBit:
		return pod.ChoiceFlags
	default:
		return pod.ChoiceNone
	}
}

func choiceTypeToRangeBits(t pod.ChoiceType) (bits uint32, unset bool) {
	switch t {
	case pod.ChoiceRange:
		return v0RangeRange, true
	case pod.ChoiceStep:
		return v0RangeStep, true
	case pod.ChoiceEnum:
		return v0RangeEnum, true
	case pod.ChoiceFlags:
		return v0RangeFlagsBit, true
	default:
		return v0RangeNone, false
	}
}

// rawNode is a decoded-but-unvalidated view of one POD: its tag and
// unpadded body. Both remap directions read input this way rather
// than through pod.Parser, since v0's Object/Prop layouts diverge from
// what Parser assumes and rewriting allocates a fresh tree regardless.
type rawNode struct {
	typ  pod.Type
	body []byte
}

func readRawNode(buf []byte) (rawNode, int, error) {
	if len(buf) < pod.HeaderSize {
		return rawNode{}, 0, malformed("truncated header")
	}
	size := binary.LittleEndian.Uint32(buf[0:4])
	typ := pod.Type(binary.LittleEndian.Uint32(buf[4:8]))
	if pod.HeaderSize+int(size) > len(buf) {
		return rawNode{}, 0, malformed("body overruns buffer")
	}
	total := pod.HeaderSize + int(pod.Align8(size))
	return rawNode{typ: typ, body: buf[pod.HeaderSize : pod.HeaderSize+int(size)]}, total, nil
}

func splitNodes(body []byte) ([]rawNode, error) {
	var out []rawNode
	for off := 0; off < len(body); {
		n, consumed, err := readRawNode(body[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		off += consumed
	}
	return out, nil
}

func wrapHeader(t pod.Type, body []byte) []byte {
	size := uint32(len(body))
	padded := pod.Align8(size)
	out := make([]byte, pod.HeaderSize+int(padded))
	binary.LittleEndian.PutUint32(out[0:4], size)
	binary.LittleEndian.PutUint32(out[4:8], uint32(t))
	copy(out[8:8+len(body)], body)
	return out
}

func putU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func malformed(reason string) error {
	return &pod.MalformedError{Offset: 0, Reason: reason}
}

func remapFailed(tag pod.Type, reason string) error {
	return &pod.RemapFailedError{Tag: tag, Offset: 0, Reason: reason}
}

// FromV0 rewrites a legacy v0 tree into v2 shape (spec.md §4.E). It
// allocates a fresh buffer and never mutates v0Bytes.
func FromV0(client *ClientTypes, v0Bytes []byte) ([]byte, error) {
	n, _, err := readRawNode(v0Bytes)
	if err != nil {
		return nil, err
	}
	return encodeFromV0(client, n)
}

func encodeFromV0(client *ClientTypes, n rawNode) ([]byte, error) {
	switch n.typ {
	case pod.TypeID:
		id, err := client.FromV0(u32(n.body))
		if err != nil {
			return nil, remapFailed(pod.TypeID, "unknown v0 identifier: "+err.Error())
		}
		return wrapHeader(pod.TypeID, putU32(id)), nil

	case pod.TypeStruct:
		children, err := splitNodes(n.body)
		if err != nil {
			return nil, err
		}
		var out []byte
		for _, c := range children {
			enc, err := encodeFromV0(client, c)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return wrapHeader(pod.TypeStruct, out), nil

	case pod.TypeObject:
		return encodeObjectFromV0(client, n)

	case pod.TypeProperty:
		return encodePropFromV0(client, n)

	default:
		// Array, Choice, Sequence, and scalar tags carry no v0/v2
		// vocabulary of their own — copied verbatim (spec.md §4.E
		// "Other tags → copy verbatim").
		return wrapHeader(n.typ, n.body), nil
	}
}

func encodeObjectFromV0(client *ClientTypes, n rawNode) ([]byte, error) {
	if len(n.body) < 8 {
		return nil, remapFailed(pod.TypeObject, "v0 object header truncated")
	}
	// v0 carries (id, type); v2 carries (type, id) — swapped (spec.md §4.E).
	v0ID := u32(n.body[0:4])
	v0Type := u32(n.body[4:8])

	var objectType, objectID uint32
	if v0Type == 0 {
		// Command: v0 has no separate type slot; object_type=0 and the
		// command enumeration rides in object_id (mirrors
		// encodeObjectToV0's reverse special case below).
		objectType = ObjectTypeCommand
		id, err := client.FromV0(v0ID)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v0 command id: "+err.Error())
		}
		objectID = id
	} else {
		typ, err := client.FromV0(v0Type)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v0 object type: "+err.Error())
		}
		id, err := client.FromV0(v0ID)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v0 object id: "+err.Error())
		}
		objectType, objectID = typ, id
	}

	children, err := splitNodes(n.body[8:])
	if err != nil {
		return nil, err
	}

	var propBodies [][]byte
	if objectType == ObjectTypeFormat && len(children) >= 2 {
		mediaType, err := encodeFromV0(client, children[0])
		if err != nil {
			return nil, err
		}
		mediaSubtype, err := encodeFromV0(client, children[1])
		if err != nil {
			return nil, err
		}
		propBodies = append(propBodies,
			wrapProperty(PropKeyMediaType, pod.PropRead|pod.PropWrite, mediaType),
			wrapProperty(PropKeyMediaSubtype, pod.PropRead|pod.PropWrite, mediaSubtype),
		)
		children = children[2:]
	}
	for _, child := range children {
		pb, err := encodeObjectChildFromV0(client, child)
		if err != nil {
			return nil, err
		}
		propBodies = append(propBodies, pb)
	}

	body := append(putU32(objectType), putU32(objectID)...)
	for _, pb := range propBodies {
		body = append(body, pb...)
	}
	return wrapHeader(pod.TypeObject, body), nil
}

// encodeObjectChildFromV0 handles one v0 Object child: either a
// legacy Prop (translated to a v2 Property/Choice pair) or a bare POD
// — v0 permitted bare children directly inside an object, v2 requires
// every child to be a Property (I3), so the walker synthesizes a
// wrapper keyed by the child's own v0 type tag.
func encodeObjectChildFromV0(client *ClientTypes, n rawNode) ([]byte, error) {
	if n.typ != pod.TypeProperty {
		enc, err := encodeFromV0(client, n)
		if err != nil {
			return nil, err
		}
		return wrapProperty(uint32(n.typ), pod.PropRead|pod.PropWrite, enc), nil
	}
	return encodePropFromV0(client, n)
}

func wrapProperty(key uint32, flags pod.PropFlag, value []byte) []byte {
	body := append(putU32(key), putU32(uint32(flags))...)
	body = append(body, value...)
	return wrapHeader(pod.TypeProperty, body)
}

// encodePropFromV0 translates a legacy Prop — (key:u32, flags:u32,
// default + alternatives as bare PODs) — into a v2 Property wrapping
// a Choice (or, for choice_type=None, a bare value).
func encodePropFromV0(client *ClientTypes, n rawNode) ([]byte, error) {
	if len(n.body) < 8 {
		return nil, remapFailed(pod.TypeProperty, "v0 prop header truncated")
	}
	v0Key := u32(n.body[0:4])
	flags := u32(n.body[4:8])
	key, err := client.FromV0(v0Key)
	if err != nil {
		return nil, remapFailed(pod.TypeProperty, "unknown v0 prop key: "+err.Error())
	}

	elements, err := splitNodes(n.body[8:])
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, remapFailed(pod.TypeProperty, "v0 prop carries no value")
	}

	choiceType := rangeBitsToChoiceType(flags, flags&v0FlagUnset != 0)
	v2Flags := pod.PropFlag(flags & 0x7) // READ=1, WRITE=2, SERIAL=4

	if choiceType == pod.ChoiceNone {
		value, err := encodeFromV0(client, elements[0])
		if err != nil {
			return nil, err
		}
		return wrapProperty(key, v2Flags, value), nil
	}

	var elemType pod.Type
	var elemSize uint32
	var stream []byte
	for _, e := range elements {
		if e.typ != pod.TypeID {
			return nil, remapFailed(e.typ, "only Id elements are supported inside a v0 prop's alternatives")
		}
		id, err := client.FromV0(u32(e.body))
		if err != nil {
			return nil, remapFailed(pod.TypeID, "unknown v0 identifier in prop alternative: "+err.Error())
		}
		elemType = pod.TypeID
		elemSize = 4
		stream = append(stream, putU32(id)...)
	}
	subHeader := append(putU32(uint32(choiceType)), putU32(0)...)
	subHeader = append(subHeader, putU32(elemSize)...)
	subHeader = append(subHeader, putU32(uint32(elemType))...)
	choiceBody := append(subHeader, stream...)
	value := wrapHeader(pod.TypeChoice, choiceBody)
	return wrapProperty(key, v2Flags, value), nil
}

// ToV0 rewrites a v2 tree back into legacy v0 shape, per spec.md
// §4.E's asymmetric rules. It allocates a fresh buffer and never
// mutates v2Bytes. Unlike FromV0, identifier translation here is
// stateless (from_v2 iterates the global table directly), so ToV0
// takes no *ClientTypes.
func ToV0(v2Bytes []byte) ([]byte, error) {
	n, _, err := readRawNode(v2Bytes)
	if err != nil {
		return nil, err
	}
	return encodeToV0(n)
}

func encodeToV0(n rawNode) ([]byte, error) {
	switch n.typ {
	case pod.TypeID:
		slot, err := FromV2(u32(n.body))
		if err != nil {
			return nil, remapFailed(pod.TypeID, "unknown v2 identifier: "+err.Error())
		}
		return wrapHeader(pod.TypeID, putU32(slot)), nil

	case pod.TypeStruct:
		children, err := splitNodes(n.body)
		if err != nil {
			return nil, err
		}
		var out []byte
		for _, c := range children {
			enc, err := encodeToV0(c)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return wrapHeader(pod.TypeStruct, out), nil

	case pod.TypeObject:
		return encodeObjectToV0(n)

	case pod.TypeProperty:
		return nil, remapFailed(pod.TypeProperty, "property encountered outside its object")

	default:
		return wrapHeader(n.typ, n.body), nil
	}
}

func encodeObjectToV0(n rawNode) ([]byte, error) {
	if len(n.body) < 8 {
		return nil, remapFailed(pod.TypeObject, "v2 object header truncated")
	}
	objectType := u32(n.body[0:4])
	objectID := u32(n.body[4:8])

	var v0Type, v0ID uint32
	if objectType == ObjectTypeCommand {
		// Command: v0 has no separate type slot; object_type=0 and
		// the command enumeration rides in object_id.
		v0Type = 0
		slot, err := FromV2(objectID)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v2 command id: "+err.Error())
		}
		v0ID = slot
	} else {
		typeSlot, err := FromV2(objectType)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v2 object type: "+err.Error())
		}
		idSlot, err := FromV2(objectID)
		if err != nil {
			return nil, remapFailed(pod.TypeObject, "unknown v2 object id: "+err.Error())
		}
		v0Type = typeSlot
		v0ID = idSlot
	}

	children, err := splitNodes(n.body[8:])
	if err != nil {
		return nil, err
	}

	var mediaType, mediaSubtype []byte
	var rest [][]byte
	for _, c := range children {
		if c.typ != pod.TypeProperty {
			return nil, remapFailed(c.typ, "v2 object child is not a Property")
		}
		if len(c.body) < 8 {
			return nil, remapFailed(pod.TypeProperty, "v2 property header truncated")
		}
		key := u32(c.body[0:4])
		flags := u32(c.body[4:8])
		value := c.body[8:]

		if objectType == ObjectTypeFormat && key == PropKeyMediaType {
			valNode, _, err := readRawNode(value)
			if err != nil {
				return nil, err
			}
			mediaType, err = encodeToV0(valNode)
			if err != nil {
				return nil, err
			}
			continue
		}
		if objectType == ObjectTypeFormat && key == PropKeyMediaSubtype {
			valNode, _, err := readRawNode(value)
			if err != nil {
				return nil, err
			}
			mediaSubtype, err = encodeToV0(valNode)
			if err != nil {
				return nil, err
			}
			continue
		}

		pb, err := encodePropToV0(key, flags, value)
		if err != nil {
			return nil, err
		}
		rest = append(rest, pb)
	}

	var bodyChildren [][]byte
	if mediaType != nil {
		bodyChildren = append(bodyChildren, mediaType)
	}
	if mediaSubtype != nil {
		bodyChildren = append(bodyChildren, mediaSubtype)
	}
	bodyChildren = append(bodyChildren, rest...)

	body := append(putU32(v0ID), putU32(v0Type)...)
	for _, bc := range bodyChildren {
		body = append(body, bc...)
	}
	return wrapHeader(pod.TypeObject, body), nil
}

// encodePropToV0 translates one v2 Property back into a legacy Prop:
// a Choice with choice_type=None collapses to a bare value (spec.md
// §4.E); range-type bits are synthesized from the Choice's type and
// OR'd with UNSET, except for None which sets no range bits.
func encodePropToV0(key, flags uint32, value []byte) ([]byte, error) {
	v0Key, err := FromV2(key)
	if err != nil {
		return nil, remapFailed(pod.TypeProperty, "unknown v2 prop key: "+err.Error())
	}
	view, err := pod.DecodeChoice(value)
	if err != nil {
		return nil, err
	}
	bits, unset := choiceTypeToRangeBits(view.Type)
	v0Flags := bits | (flags & 0x7)
	if unset {
		v0Flags |= v0FlagUnset
	}

	var elementBytes []byte
	for _, e := range view.Elements {
		enc, err := encodeToV0(rawNode{typ: view.Elem, body: e})
		if err != nil {
			return nil, err
		}
		elementBytes = append(elementBytes, enc...)
	}

	propBody := append(putU32(v0Key), putU32(v0Flags)...)
	propBody = append(propBody, elementBytes...)
	return wrapHeader(pod.TypeProperty, propBody), nil
}
