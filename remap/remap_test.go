package remap

import (
	"testing"

	"github.com/podwire/pod/pod"
)

func identityClient() *ClientTypes {
	client := NewClientTypes()
	names := make([]string, len(GlobalTypes))
	for i, row := range GlobalTypes {
		names[i] = row.Name
	}
	client.Install(0, names)
	return client
}

func v0Slot(t *testing.T, name string) uint32 {
	idx, ok := globalIndexByName(name)
	if !ok {
		t.Fatalf("no global row named %q", name)
	}
	return uint32(idx)
}

func v0IDNode(slot uint32) []byte {
	return wrapHeader(pod.TypeID, putU32(slot))
}

func v0Object(id, typ uint32, children ...[]byte) []byte {
	body := append(putU32(id), putU32(typ)...)
	for _, c := range children {
		body = append(body, c...)
	}
	return wrapHeader(pod.TypeObject, body)
}

// TestFromV0FormatRemap implements spec.md §8 scenario 4: a v0 Object
// whose first two children are bare Id(legacy_audio) and Id(legacy_raw)
// becomes an Object(type=Format) carrying mediaType/mediaSubtype
// properties.
func TestFromV0FormatRemap(t *testing.T) {
	client := identityClient()

	v0 := v0Object(
		v0Slot(t, "Int"), // object_id, value is arbitrary for this scenario
		v0Slot(t, "Format"),
		v0IDNode(v0Slot(t, "Audio")),
		v0IDNode(v0Slot(t, "Raw")),
	)

	out, err := FromV0(client, v0)
	if err != nil {
		t.Fatal(err)
	}

	p := pod.NewParser(out)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}

	mediaType, err := p.FindProp(PropKeyMediaType)
	if err != nil {
		t.Fatal(err)
	}
	if id := decodeBareID(t, mediaType.Value); id != audioID(t) {
		t.Fatalf("mediaType: got id %d, want Audio (%d)", id, audioID(t))
	}

	mediaSubtype, err := p.FindProp(PropKeyMediaSubtype)
	if err != nil {
		t.Fatal(err)
	}
	if id := decodeBareID(t, mediaSubtype.Value); id != rawID(t) {
		t.Fatalf("mediaSubtype: got id %d, want Raw (%d)", id, rawID(t))
	}
}

func audioID(t *testing.T) uint32 { return globalID(t, "Audio") }
func rawID(t *testing.T) uint32   { return globalID(t, "Raw") }

func globalID(t *testing.T, name string) uint32 {
	idx, ok := globalIndexByName(name)
	if !ok {
		t.Fatalf("no global row named %q", name)
	}
	return GlobalTypes[idx].ID
}

func decodeBareID(t *testing.T, value []byte) uint32 {
	_, choiceType, child, err := pod.GetValues(value)
	if err != nil {
		t.Fatal(err)
	}
	if choiceType != pod.ChoiceNone {
		t.Fatalf("got choice type %s, want a bare Id", choiceType)
	}
	id, err := pod.NewParser(child).GetID()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// TestFromV0UnknownObjectTypeFails exercises the failure path when a
// v0 object's type slot was never announced via Install.
func TestFromV0UnknownObjectTypeFails(t *testing.T) {
	client := identityClient()
	v0 := v0Object(v0Slot(t, "Int"), 9999)
	_, err := FromV0(client, v0)
	if _, ok := err.(*pod.RemapFailedError); !ok {
		t.Fatalf("got %T, want *pod.RemapFailedError", err)
	}
}

// TestFromV0CommandObjectIDTypeSwap exercises the reverse of
// TestToV0CommandObjectIDTypeSwap: a v0 Command message carries
// object_type=0 with the command identity in object_id, and must be
// recognized as ObjectTypeCommand without a generic type-slot lookup.
func TestFromV0CommandObjectIDTypeSwap(t *testing.T) {
	client := identityClient()
	v0 := v0Object(v0Slot(t, "Command"), 0)

	out, err := FromV0(client, v0)
	if err != nil {
		t.Fatal(err)
	}

	n, _, err := readRawNode(out)
	if err != nil {
		t.Fatal(err)
	}
	if n.typ != pod.TypeObject {
		t.Fatalf("got tag %s, want Object", n.typ)
	}
	if len(n.body) < 8 {
		t.Fatal("v2 object body truncated")
	}
	objectType := u32(n.body[0:4])
	objectID := u32(n.body[4:8])
	if objectType != ObjectTypeCommand {
		t.Fatalf("got object_type %d, want ObjectTypeCommand (%d)", objectType, ObjectTypeCommand)
	}
	if objectID != globalID(t, "Command") {
		t.Fatalf("got object_id %d, want Command's v2 id (%d)", objectID, globalID(t, "Command"))
	}
}

// TestToV0CommandObjectIDTypeSwap exercises the asymmetry spec.md §4.E
// calls out: a v2 Command object has no v0 "type" slot of its own —
// object_type collapses to 0 and the command identity rides in the v0
// object_id field, translated through the command enumeration.
func TestToV0CommandObjectIDTypeSwap(t *testing.T) {
	b := pod.NewBuilder(make([]byte, 256))
	b.OpenObject(ObjectTypeCommand, globalID(t, "Command"))
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	v2, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	out, err := ToV0(v2)
	if err != nil {
		t.Fatal(err)
	}

	n, _, err := readRawNode(out)
	if err != nil {
		t.Fatal(err)
	}
	if n.typ != pod.TypeObject {
		t.Fatalf("got tag %s, want Object", n.typ)
	}
	if len(n.body) < 8 {
		t.Fatal("v0 object body truncated")
	}
	v0ID := u32(n.body[0:4])
	v0Type := u32(n.body[4:8])
	if v0Type != 0 {
		t.Fatalf("got v0 object_type %d, want 0 (Command has no separate v0 type slot)", v0Type)
	}
	if v0ID != v0Slot(t, "Command") {
		t.Fatalf("got v0 object_id %d, want the Command row's v0 slot (%d)", v0ID, v0Slot(t, "Command"))
	}
}

// TestToV0OrdinaryObjectKeepsSeparateTypeAndID confirms non-Command
// objects still carry distinct (id, type) slots, unlike the Command
// special case above.
func TestToV0OrdinaryObjectKeepsSeparateTypeAndID(t *testing.T) {
	b := pod.NewBuilder(make([]byte, 256))
	b.OpenObject(ObjectTypeFormat, globalID(t, "Int"))
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	v2, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	out, err := ToV0(v2)
	if err != nil {
		t.Fatal(err)
	}
	n, _, err := readRawNode(out)
	if err != nil {
		t.Fatal(err)
	}
	v0ID := u32(n.body[0:4])
	v0Type := u32(n.body[4:8])
	if v0Type != v0Slot(t, "Format") {
		t.Fatalf("got v0 object_type %d, want Format's slot (%d)", v0Type, v0Slot(t, "Format"))
	}
	if v0ID != v0Slot(t, "Int") {
		t.Fatalf("got v0 object_id %d, want Int's slot (%d)", v0ID, v0Slot(t, "Int"))
	}
}

// TestRoundTripFormatObjectThroughBothDirections builds a v2 Format
// object directly (as cmd/podd does, but with an object_id that has a
// global-table row, since both directions translate it), converts it
// to v0 and back, and checks the media identifiers survive.
func TestRoundTripFormatObjectThroughBothDirections(t *testing.T) {
	b := pod.NewBuilder(make([]byte, 256))
	b.OpenObject(ObjectTypeFormat, globalID(t, "Int"))
	if err := b.OpenProperty(PropKeyMediaType, pod.PropRead|pod.PropWrite); err != nil {
		t.Fatal(err)
	}
	if err := b.ID(audioID(t)); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // property
		t.Fatal(err)
	}
	if err := b.OpenProperty(PropKeyMediaSubtype, pod.PropRead|pod.PropWrite); err != nil {
		t.Fatal(err)
	}
	if err := b.ID(rawID(t)); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // property
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // object
		t.Fatal(err)
	}
	v2, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	v0, err := ToV0(v2)
	if err != nil {
		t.Fatal(err)
	}

	client := identityClient()
	back, err := FromV0(client, v0)
	if err != nil {
		t.Fatal(err)
	}

	p := pod.NewParser(back)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	mediaType, err := p.FindProp(PropKeyMediaType)
	if err != nil {
		t.Fatal(err)
	}
	if id := decodeBareID(t, mediaType.Value); id != audioID(t) {
		t.Fatalf("got mediaType %d after round trip, want Audio (%d)", id, audioID(t))
	}
}
