package log

import (
	"testing"

	"github.com/op/go-logging"
)

func TestCutSplitsOnFirstSeparator(t *testing.T) {
	before, after, ok := cut("pod.object.100=DEBUG", "=")
	if !ok || before != "pod.object.100" || after != "DEBUG" {
		t.Fatalf("got (%q, %q, %v), want (\"pod.object.100\", \"DEBUG\", true)", before, after, ok)
	}
}

func TestCutMissingSeparator(t *testing.T) {
	_, _, ok := cut("no-separator-here", "=")
	if ok {
		t.Fatal("expected ok=false when the separator is absent")
	}
}

func TestModuleForObjectTypeIsStableAndDistinct(t *testing.T) {
	if got, want := moduleForObjectType(100), "pod.object.100"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if moduleForObjectType(100) == moduleForObjectType(101) {
		t.Fatal("expected distinct modules for distinct object types")
	}
}

func TestForObjectTypeReturnsSameLoggerForSameType(t *testing.T) {
	a := ForObjectType(100)
	b := ForObjectType(100)
	if a != b {
		t.Fatal("expected ForObjectType to return the same *logging.Logger instance for the same object type")
	}
}

func TestApplyModuleOverridesSkipsMalformedEntries(t *testing.T) {
	t.Setenv("POD_LOG_MODULES", "pod.object.100=DEBUG,garbage,pod.object.101=NOTLEVEL")
	backend := logging.NewLogBackend(discard{}, "", 0)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(logging.INFO, "pod.object.100")
	leveled.SetLevel(logging.INFO, "pod.object.101")

	applyModuleOverrides(leveled)

	if got := leveled.GetLevel("pod.object.100"); got != logging.DEBUG {
		t.Fatalf("got level %v for pod.object.100, want DEBUG", got)
	}
	if got := leveled.GetLevel("pod.object.101"); got != logging.INFO {
		t.Fatalf("got level %v for pod.object.101, want unchanged INFO (value was not a valid level)", got)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
