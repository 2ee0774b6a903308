// Package protocol implements the demarshaler registry spec.md §6
// describes only as an external interface: a lookup from
// (interface, version, opcode) to the handler that knows how to read
// or write that message's POD body.
package protocol

import (
	"fmt"

	"github.com/golang/groupcache/lru"
	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"github.com/podwire/pod/pod"
)

// InterfaceID names one protocol interface (a related group of
// opcodes), analogous to a D-Bus interface name or a Wayland
// interface.
type InterfaceID uint32

// Opcode selects one method within an interface.
type Opcode uint32

// Marshaler builds an outgoing message body into b. b is already
// positioned wherever the message belongs (typically the top level of
// a fresh Builder); Marshaler only ever appends.
type Marshaler func(b *pod.Builder) error

// Demarshaler reads an incoming message body from p. p is positioned
// at the start of the message; Demarshaler reads exactly the fields
// it expects and returns TypeMismatchError/ShapeError on a mismatch —
// Dispatch returns either to its caller unchanged.
type Demarshaler func(p *pod.Parser) error

// Handler is either half of a method: a Marshaler for building
// outgoing calls, a Demarshaler for handling incoming ones. A given
// opcode registers whichever direction this process needs; a
// bidirectional method registers both under the same Method entry.
type Handler struct {
	Marshal   Marshaler
	Demarshal Demarshaler
}

// Method is one opcode's pair of handlers within a versioned
// interface.
type Method struct {
	Opcode  Opcode
	Handler Handler
}

// Interface is one (InterfaceID, version) combination's method table.
type Interface struct {
	ID      InterfaceID
	Version uint32
	Methods map[Opcode]Handler
}

// ErrNoHandler is returned by Dispatch when no interface or no opcode
// matches — an unrecognized but well-formed message is unroutable,
// not malformed (spec.md §7).
var ErrNoHandler = fmt.Errorf("protocol: no handler for this interface/version/opcode")

// Registry holds every Interface this process knows how to speak,
// keyed by (InterfaceID, Version) so the same interface can carry
// multiple concurrently-supported versions — the remap layer (4.E)
// handles translating a v0 peer's identifiers into the v2 ids this
// registry is keyed by, so Registry itself only ever sees v2
// vocabulary.
type Registry struct {
	log        *logging.Logger
	interfaces map[regKey]*Interface

	// recent bounds a per-object record of the last trace id dispatched
	// to (InterfaceID, Version, Opcode) on that object, purely for log
	// enrichment — a repeat dispatch isn't rejected, just annotated with
	// the trace it followed, the same bookkeeping-not-gating role the
	// teacher's requestCallbacksByRequestID/ackedRequestIDs caches play
	// around its own request log lines.
	recent *lru.Cache
}

type regKey struct {
	id      InterfaceID
	version uint32
}

type dispatchKey struct {
	object  uint32
	iface   InterfaceID
	version uint32
	opcode  Opcode
}

const recentDispatchBound = 256

// NewRegistry constructs an empty registry. log may be nil, in which
// case dispatch is not traced.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		log:        log,
		interfaces: make(map[regKey]*Interface),
		recent:     lru.New(recentDispatchBound),
	}
}

// Register installs iface, replacing any previous registration for
// the same (ID, Version).
func (r *Registry) Register(iface *Interface) {
	r.interfaces[regKey{iface.ID, iface.Version}] = iface
}

// Interfaces reports how many (InterfaceID, Version) pairs are
// currently registered — for startup logging, not routing.
func (r *Registry) Interfaces() int {
	return len(r.interfaces)
}

// Dispatch routes an incoming message addressed to objectID, on
// interface ifaceID at the given version and opcode, to its
// Demarshaler, handing it p to read the message body from. objectID
// is not used for routing — handler lookup is purely
// (interface, version, opcode) per spec.md §6 — but is carried
// through to the trace log line, since it is what a human reading logs
// needs to tell two objects of the same interface apart.
//
// Each call is stamped with a fresh correlation id so related log
// lines (handler entry, handler error, any logging the handler itself
// does) can be grepped together across a busy daemon.
func (r *Registry) Dispatch(objectID uint32, ifaceID InterfaceID, version uint32, opcode Opcode, p *pod.Parser) error {
	traceID := uuid.NewV4()

	iface, ok := r.interfaces[regKey{ifaceID, version}]
	if !ok {
		r.logf(traceID, "no interface %d v%d registered (object %d)", ifaceID, version, objectID)
		return ErrNoHandler
	}
	method, ok := iface.Methods[opcode]
	if !ok {
		r.logf(traceID, "interface %d v%d has no opcode %d (object %d)", ifaceID, version, opcode, objectID)
		return ErrNoHandler
	}
	if method.Demarshal == nil {
		r.logf(traceID, "interface %d v%d opcode %d has no demarshaler (object %d)", ifaceID, version, opcode, objectID)
		return ErrNoHandler
	}

	key := dispatchKey{objectID, ifaceID, version, opcode}
	if last, ok := r.recent.Get(key); ok {
		r.logf(traceID, "dispatch object %d interface %d v%d opcode %d (repeats trace %s)", objectID, ifaceID, version, opcode, last)
	} else {
		r.logf(traceID, "dispatch object %d interface %d v%d opcode %d", objectID, ifaceID, version, opcode)
	}
	r.recent.Add(key, traceID.String())

	if err := method.Demarshal(p); err != nil {
		r.logf(traceID, "handler error: %v", err)
		return err
	}
	return nil
}

// Marshal looks up the Marshaler for (ifaceID, version, opcode) and
// invokes it against b — the outbound counterpart to Dispatch, used
// by a caller building a request or reply rather than handling one.
func (r *Registry) Marshal(ifaceID InterfaceID, version uint32, opcode Opcode, b *pod.Builder) error {
	iface, ok := r.interfaces[regKey{ifaceID, version}]
	if !ok {
		return ErrNoHandler
	}
	method, ok := iface.Methods[opcode]
	if !ok || method.Marshal == nil {
		return ErrNoHandler
	}
	return method.Marshal(b)
}

func (r *Registry) logf(traceID uuid.UUID, format string, args ...interface{}) {
	if r.log == nil {
		return
	}
	r.log.Noticef("[%s] "+format, append([]interface{}{traceID.String()}, args...)...)
}
