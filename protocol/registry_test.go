package protocol

import (
	"testing"

	"github.com/podwire/pod/pod"
)

const (
	testInterface InterfaceID = 1
	testOpcode    Opcode      = 1
)

func buildGreeting(t *testing.T, name string) []byte {
	b := pod.NewBuilder(make([]byte, 64))
	b.OpenStruct()
	if err := b.String(name); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	out, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDispatchInvokesDemarshaler(t *testing.T) {
	r := NewRegistry(nil)
	var got string
	r.Register(&Interface{
		ID:      testInterface,
		Version: 2,
		Methods: map[Opcode]Handler{
			testOpcode: {
				Demarshal: func(p *pod.Parser) error {
					if err := p.Enter(); err != nil {
						return err
					}
					s, err := p.GetString()
					if err != nil {
						return err
					}
					got = s
					return p.Leave()
				},
			},
		},
	})

	p := pod.NewParser(buildGreeting(t, "hello"))
	if err := r.Dispatch(1, testInterface, 2, testOpcode, p); err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestDispatchTracksRecentPerKey(t *testing.T) {
	r := NewRegistry(nil)
	var calls int
	r.Register(&Interface{
		ID:      testInterface,
		Version: 2,
		Methods: map[Opcode]Handler{
			testOpcode: {
				Demarshal: func(p *pod.Parser) error {
					calls++
					return p.Enter()
				},
			},
		},
	})

	key := dispatchKey{1, testInterface, 2, testOpcode}
	if _, ok := r.recent.Get(key); ok {
		t.Fatal("expected no recent-dispatch entry before the first call")
	}
	if err := r.Dispatch(1, testInterface, 2, testOpcode, pod.NewParser(buildGreeting(t, "a"))); err != nil {
		t.Fatal(err)
	}
	first, ok := r.recent.Get(key)
	if !ok {
		t.Fatal("expected a recent-dispatch entry after the first call")
	}
	if err := r.Dispatch(1, testInterface, 2, testOpcode, pod.NewParser(buildGreeting(t, "b"))); err != nil {
		t.Fatal(err)
	}
	second, ok := r.recent.Get(key)
	if !ok {
		t.Fatal("expected a recent-dispatch entry after the second call")
	}
	if first == second {
		t.Fatal("expected the second dispatch to record a fresh trace id")
	}
	if calls != 2 {
		t.Fatalf("got %d handler invocations, want 2 (repeats are annotated, not suppressed)", calls)
	}
}

func TestDispatchUnknownInterface(t *testing.T) {
	r := NewRegistry(nil)
	p := pod.NewParser(buildGreeting(t, "hello"))
	err := r.Dispatch(1, testInterface, 2, testOpcode, p)
	if err != ErrNoHandler {
		t.Fatalf("got %v, want ErrNoHandler", err)
	}
}

func TestDispatchUnknownOpcode(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Interface{
		ID:      testInterface,
		Version: 2,
		Methods: map[Opcode]Handler{},
	})
	p := pod.NewParser(buildGreeting(t, "hello"))
	err := r.Dispatch(1, testInterface, 2, testOpcode, p)
	if err != ErrNoHandler {
		t.Fatalf("got %v, want ErrNoHandler", err)
	}
}

func TestDispatchPropagatesTypeMismatch(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Interface{
		ID:      testInterface,
		Version: 2,
		Methods: map[Opcode]Handler{
			testOpcode: {
				Demarshal: func(p *pod.Parser) error {
					if err := p.Enter(); err != nil {
						return err
					}
					// The struct body is a string, not an int; this
					// must surface the parser's own type mismatch.
					_, err := p.GetInt()
					return err
				},
			},
		},
	})

	p := pod.NewParser(buildGreeting(t, "hello"))
	err := r.Dispatch(1, testInterface, 2, testOpcode, p)
	if err == nil {
		t.Fatal("expected a type mismatch error, got nil")
	}
	if _, ok := err.(*pod.TypeMismatchError); !ok {
		t.Fatalf("got %T, want *pod.TypeMismatchError", err)
	}
}

func TestMarshalInvokesMarshaler(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Interface{
		ID:      testInterface,
		Version: 2,
		Methods: map[Opcode]Handler{
			testOpcode: {
				Marshal: func(b *pod.Builder) error {
					b.OpenStruct()
					if err := b.String("reply"); err != nil {
						return err
					}
					return b.Close()
				},
			},
		},
	})

	b := pod.NewBuilder(make([]byte, 64))
	if err := r.Marshal(testInterface, 2, testOpcode, b); err != nil {
		t.Fatal(err)
	}

	built, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	p := pod.NewParser(built)
	if err := p.Enter(); err != nil {
		t.Fatal(err)
	}
	s, err := p.GetString()
	if err != nil {
		t.Fatal(err)
	}
	if s != "reply" {
		t.Fatalf("got %q, want %q", s, "reply")
	}
}
