package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/op/go-logging"

	"github.com/podwire/pod/internal/log"
	"github.com/podwire/pod/pod"
	"github.com/podwire/pod/protocol"
	"github.com/podwire/pod/remap"
)

func useSyslog() bool {
	env := os.Getenv("POD_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return true
}

var podLog = log.Setup("podd", logging.INFO, useSyslog())

const (
	formatInterface protocol.InterfaceID = 1
	opcodeGet       protocol.Opcode      = 1
	opcodeSet       protocol.Opcode      = 2
)

// registerFormatEcho installs a small built-in interface over the
// Format object (4.E) so dispatch and remap are exercised by a
// runnable process, not only by tests: Get replies with whatever
// mediaType/mediaSubtype the object last held, Set overwrites it.
func registerFormatEcho(r *protocol.Registry) {
	var mediaType, mediaSubtype uint32 = uint32(pod.TypeID), 0
	objLog := log.ForObjectType(remap.ObjectTypeFormat)

	r.Register(&protocol.Interface{
		ID:      formatInterface,
		Version: 2,
		Methods: map[protocol.Opcode]protocol.Handler{
			opcodeGet: {
				Marshal: func(b *pod.Builder) error {
					b.OpenObject(remap.ObjectTypeFormat, 0)
					if err := b.OpenProperty(remap.PropKeyMediaType, pod.PropRead); err != nil {
						return err
					}
					if err := b.ID(mediaType); err != nil {
						return err
					}
					if err := b.Close(); err != nil { // property
						return err
					}
					if err := b.OpenProperty(remap.PropKeyMediaSubtype, pod.PropRead); err != nil {
						return err
					}
					if err := b.ID(mediaSubtype); err != nil {
						return err
					}
					if err := b.Close(); err != nil { // property
						return err
					}
					return b.Close() // object
				},
			},
			opcodeSet: {
				Demarshal: func(p *pod.Parser) error {
					if err := p.Enter(); err != nil { // object
						return err
					}
					for p.HasNext() {
						if err := p.Enter(); err != nil { // property
							return err
						}
						key, _, err := p.ReadPropertyHeader()
						if err != nil {
							return err
						}
						id, err := p.GetID()
						if err != nil {
							return err
						}
						switch key {
						case remap.PropKeyMediaType:
							mediaType = id
						case remap.PropKeyMediaSubtype:
							mediaSubtype = id
						}
						if err := p.Leave(); err != nil { // property
							return err
						}
					}
					objLog.Debugf("format object updated: mediaType=%d mediaSubtype=%d", mediaType, mediaSubtype)
					return p.Leave() // object
				},
			},
		},
	})
}

func main() {
	defer func() {
		if x := recover(); x != nil {
			podLog.Error(fmt.Sprintf("run time panic: %v", x))
			podLog.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	registry := protocol.NewRegistry(podLog)
	registerFormatEcho(registry)

	client := remap.NewClientTypes()
	names := make([]string, len(remap.GlobalTypes))
	for i, row := range remap.GlobalTypes {
		names[i] = row.Name
	}
	client.Install(0, names)

	podLog.Notice("podd launched; registered interfaces:", registry.Interfaces())

	// Exercise the wiring once at startup: Dispatch a Set, then Marshal
	// a Get and parse the reply, so a fresh deployment's log shows a
	// working round trip before any real transport connects.
	setBuf := pod.NewBuilder(make([]byte, 256))
	setBuf.OpenObject(remap.ObjectTypeFormat, 0)
	if err := setBuf.OpenProperty(remap.PropKeyMediaType, pod.PropWrite); err == nil {
		setBuf.ID(uint32(pod.TypeID))
		setBuf.Close()
	}
	setBuf.Close() // object

	if out, err := setBuf.Bytes(); err != nil {
		podLog.Error("self-check encode failed:", err)
	} else if err := registry.Dispatch(0, formatInterface, 2, opcodeSet, pod.NewParser(out)); err != nil {
		podLog.Error("self-check set dispatch failed:", err)
	} else {
		getBuf := pod.NewBuilder(make([]byte, 256))
		if err := registry.Marshal(formatInterface, 2, opcodeGet, getBuf); err != nil {
			podLog.Error("self-check get marshal failed:", err)
		} else if _, err := getBuf.Bytes(); err != nil {
			podLog.Error("self-check get encode failed:", err)
		} else {
			podLog.Notice("self-check round trip succeeded")
		}
	}

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	sig, ok := <-stopSignal
	if ok {
		podLog.Notice("stopping with signal", sig)
	}
}
