package pod

import "testing"

func buildObjectWithProps(t *testing.T) []byte {
	b := NewBuilder(make([]byte, 256))
	b.OpenObject(0, 0)

	if err := b.OpenProperty(1, PropRead); err != nil {
		t.Fatal(err)
	}
	b.OpenChoice(ChoiceEnum, 0)
	if err := b.Int(1); err != nil {
		t.Fatal(err)
	}
	if err := b.Int(2); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // choice
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // property
		t.Fatal(err)
	}

	if err := b.OpenProperty(2, PropRead|PropWrite); err != nil {
		t.Fatal(err)
	}
	if err := b.Int(42); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // property
		t.Fatal(err)
	}

	if err := b.OpenProperty(3, PropRead); err != nil {
		t.Fatal(err)
	}
	b.OpenChoice(ChoiceRange, 0)
	if err := b.Rectangle(320, 240); err != nil {
		t.Fatal(err)
	}
	if err := b.Rectangle(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.Rectangle(1024, 1024); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // choice
		t.Fatal(err)
	}
	if err := b.Close(); err != nil { // property
		t.Fatal(err)
	}

	if err := b.Close(); err != nil { // object
		t.Fatal(err)
	}
	out, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestParserFindPropReturnsMatchingKey(t *testing.T) {
	raw := buildObjectWithProps(t)
	p := NewParser(raw)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	prop, err := p.FindProp(2)
	if err != nil {
		t.Fatal(err)
	}
	n, choiceType, child, err := GetValues(prop.Value)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || choiceType != ChoiceNone {
		t.Fatalf("got n=%d choiceType=%s, want a bare value", n, choiceType)
	}
	cp := NewParser(child)
	v, err := cp.GetInt()
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestParserFindPropMissingKey(t *testing.T) {
	raw := buildObjectWithProps(t)
	p := NewParser(raw)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.FindProp(99); err != ErrPropertyNotFound {
		t.Fatalf("got %v, want ErrPropertyNotFound", err)
	}
}

func TestParserWalksAllThreeProperties(t *testing.T) {
	raw := buildObjectWithProps(t)
	p := NewParser(raw)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	var keys []uint32
	for p.HasNext() {
		if err := p.Enter(); err != nil {
			t.Fatal(err)
		}
		key, _, err := p.ReadPropertyHeader()
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, key)
		// decode whatever value follows without caring what it is;
		// Leave below skips past it.
		if _, _, _, err := GetValues(p.buf[p.pos:]); err != nil {
			t.Fatal(err)
		}
		if err := p.Leave(); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Leave(); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != 1 || keys[1] != 2 || keys[2] != 3 {
		t.Fatalf("got keys %v, want [1 2 3]", keys)
	}
}

func TestParserMalformedBodyOverrun(t *testing.T) {
	buf := make([]byte, 16)
	// Claim a body of 1000 bytes in a 16-byte buffer.
	buf[0] = 0xE8
	buf[1] = 0x03
	p := NewParser(buf)
	_, err := p.PeekType()
	if err == nil {
		t.Fatal("expected a malformed error")
	}
	if _, ok := err.(*MalformedError); !ok {
		t.Fatalf("got %T, want *MalformedError", err)
	}
}

func TestParserTypeMismatch(t *testing.T) {
	b := NewBuilder(make([]byte, 64))
	b.OpenStruct()
	if err := b.Int(4); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	out, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	p := NewParser(out)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	_, err = p.GetString()
	if _, ok := err.(*TypeMismatchError); !ok {
		t.Fatalf("got %T, want *TypeMismatchError", err)
	}
}

func TestParserHeaderFootprintMatchesEncodedLength(t *testing.T) {
	b := NewBuilder(make([]byte, 64))
	b.OpenStruct()
	if err := b.Int(4); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	out, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	p := NewParser(out)
	size, typ, err := p.peekHeader()
	if err != nil {
		t.Fatal(err)
	}
	if typ != TypeStruct {
		t.Fatalf("got %s, want Struct", typ)
	}
	want := HeaderSize + int(align8(size))
	if want != len(out) {
		t.Fatalf("scenario tree is %d bytes, peekHeader implies %d", len(out), want)
	}
}
