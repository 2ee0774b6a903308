package main

/*
* CLI to inspect, build, and remap POD files.
 */

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/youtube/vitess/go/ioutil2"

	"github.com/podwire/pod/internal/version"
	"github.com/podwire/pod/pod"
	"github.com/podwire/pod/remap"
)

func cyan(s string) string {
	c := color.New(color.FgHiCyan)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func green(s string) string {
	c := color.New(color.FgHiGreen)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func yellow(s string) string {
	c := color.New(color.FgHiYellow)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func red(s string) string {
	c := color.New(color.FgHiRed)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func fatal(msg string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, red(fmt.Sprintf(msg, args...)))
	os.Exit(1)
}

func dumpCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		fatal("usage: podctl dump <file>")
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		fatal("reading %s: %s", path, err.Error())
	}

	var out strings.Builder
	p := pod.NewParser(raw)
	if err := dumpValue(p, 0, &out); err != nil {
		fatal("dump: %s", err.Error())
	}
	rendered := out.String()
	fmt.Print(rendered)

	if c.Bool("copy") {
		if err := clipboard.WriteAll(rendered); err != nil {
			fmt.Fprintln(os.Stderr, yellow("could not copy to clipboard: "+err.Error()))
		}
	}
	if snapshot := c.String("snapshot"); snapshot != "" {
		if err := ioutil2.WriteFileAtomic(snapshot, []byte(rendered), 0644); err != nil {
			fatal("writing snapshot %s: %s", snapshot, err.Error())
		}
	}
	return nil
}

// dumpValue renders the POD at the parser's current position as an
// indented tree: tag name and whatever scalar or structural detail
// applies; sizes are not printed. It consumes exactly the one value it
// renders.
func dumpValue(p *pod.Parser, depth int, out *strings.Builder) error {
	indent := strings.Repeat("  ", depth)
	typ, err := p.PeekType()
	if err != nil {
		return err
	}

	switch typ {
	case pod.TypeStruct, pod.TypeArray, pod.TypeObject, pod.TypeChoice, pod.TypeSequence:
		if err := p.Enter(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s\n", indent, cyan(typ.String()))
		switch typ {
		case pod.TypeObject:
			objType, objID, _ := p.ObjectHeader()
			fmt.Fprintf(out, "%s  type=%d id=%d\n", indent, objType, objID)
		case pod.TypeChoice:
			choiceType, flags, _ := p.ChoiceHeader()
			fmt.Fprintf(out, "%s  choice=%s flags=%d\n", indent, choiceType.String(), flags)
		case pod.TypeSequence:
			unit, _ := p.SequenceUnit()
			fmt.Fprintf(out, "%s  unit=%d\n", indent, unit)
		}
		for p.HasNext() {
			if typ == pod.TypeObject {
				if err := dumpProperty(p, depth+1, out); err != nil {
					return err
				}
				continue
			}
			if err := dumpValue(p, depth+1, out); err != nil {
				return err
			}
		}
		return p.Leave()

	case pod.TypeProperty:
		return dumpProperty(p, depth, out)

	case pod.TypeBool:
		v, err := p.GetBool()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %v\n", indent, green("Bool"), v)
	case pod.TypeID:
		v, err := p.GetID()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d\n", indent, green("Id"), v)
	case pod.TypeInt:
		v, err := p.GetInt()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d\n", indent, green("Int"), v)
	case pod.TypeLong:
		v, err := p.GetLong()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d\n", indent, green("Long"), v)
	case pod.TypeFloat:
		v, err := p.GetFloat()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %v\n", indent, green("Float"), v)
	case pod.TypeDouble:
		v, err := p.GetDouble()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %v\n", indent, green("Double"), v)
	case pod.TypeString:
		v, err := p.GetString()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %q\n", indent, green("String"), v)
	case pod.TypeBytes:
		v, err := p.GetBytes()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d bytes\n", indent, green("Bytes"), len(v))
	case pod.TypeFd:
		v, err := p.GetFd()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d\n", indent, green("Fd"), v)
	case pod.TypeRectangle:
		w, h, err := p.GetRectangle()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %dx%d\n", indent, green("Rectangle"), w, h)
	case pod.TypeFraction:
		n, d, err := p.GetFraction()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %d/%d\n", indent, green("Fraction"), n, d)
	case pod.TypePointer:
		t, ptr, err := p.GetPointer()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%s = %s@0x%x\n", indent, green("Pointer"), t.String(), ptr)
	default:
		return fmt.Errorf("podctl: dump does not know how to render %s", typ.String())
	}
	return nil
}

func dumpProperty(p *pod.Parser, depth int, out *strings.Builder) error {
	indent := strings.Repeat("  ", depth)
	if err := p.Enter(); err != nil {
		return err
	}
	key, flags, err := p.ReadPropertyHeader()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%sProperty key=%d flags=%d\n", indent, key, flags)
	if err := dumpValue(p, depth+1, out); err != nil {
		return err
	}
	return p.Leave()
}

// buildScenario1 builds the spec §8 scenario-1 tree: a Struct holding
// one of each scalar plus a homogeneous Int array.
func buildScenario1(buf []byte) (*pod.Builder, error) {
	b := pod.NewBuilder(buf)
	b.OpenStruct()
	if err := b.Int(4); err != nil {
		return b, err
	}
	if err := b.Long(6000); err != nil {
		return b, err
	}
	if err := b.Float(4.0); err != nil {
		return b, err
	}
	if err := b.Double(3.14); err != nil {
		return b, err
	}
	if err := b.String("test123"); err != nil {
		return b, err
	}
	if err := b.Rectangle(320, 240); err != nil {
		return b, err
	}
	if err := b.Fraction(25, 1); err != nil {
		return b, err
	}
	if err := b.OpenArray(pod.TypeInt, 4); err != nil {
		return b, err
	}
	for _, v := range []int32{4, 5, 6} {
		if err := b.Int(v); err != nil {
			return b, err
		}
	}
	if err := b.Close(); err != nil { // array
		return b, err
	}
	return b, b.Close() // struct
}

func buildCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		fatal("usage: podctl build <file>")
	}

	// Demonstrate the overflow/retry contract: start deliberately small
	// and, on overflow, retry with the capacity the OverflowError reports
	// until Close on the outermost frame succeeds.
	size := 32
	var out []byte
	for {
		buf := make([]byte, size)
		b, err := buildScenario1(buf)
		if err == nil {
			bytes, berr := b.Bytes()
			if berr == nil {
				out = bytes
				break
			}
			err = berr
		}
		if overflow, ok := err.(*pod.OverflowError); ok {
			size = overflow.Required
			continue
		}
		fatal("build: %s", err.Error())
	}

	if err := ioutil2.WriteFileAtomic(path, out, 0644); err != nil {
		fatal("writing %s: %s", path, err.Error())
	}
	fmt.Println(green(fmt.Sprintf("wrote %d bytes to %s", len(out), path)))
	return nil
}

func remapCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		fatal("usage: podctl remap <file> --to {v0,v2}")
	}
	direction := c.String("to")
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		fatal("reading %s: %s", path, err.Error())
	}

	var out []byte
	switch direction {
	case "v2":
		client := remap.NewClientTypes()
		names := make([]string, len(remap.GlobalTypes))
		for i, row := range remap.GlobalTypes {
			names[i] = row.Name
		}
		client.Install(0, names)
		out, err = remap.FromV0(client, raw)
	case "v0":
		out, err = remap.ToV0(raw)
	default:
		fatal("--to must be v0 or v2")
	}
	if err != nil {
		fatal("remap: %s", err.Error())
	}

	if err := ioutil2.WriteFileAtomic(path, out, 0644); err != nil {
		fatal("writing %s: %s", path, err.Error())
	}
	fmt.Println(green(fmt.Sprintf("remapped to %s, wrote %d bytes", direction, len(out))))
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "podctl"
	app.Usage = "inspect, build, and remap POD files"
	app.Version = version.CURRENT_VERSION.String()
	app.Commands = []cli.Command{
		{
			Name:      "dump",
			Usage:     "print a POD file as a human-readable tree",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "copy", Usage: "copy the rendered tree to the clipboard"},
				cli.StringFlag{Name: "snapshot", Usage: "also write the rendered tree to this path"},
			},
			Action: dumpCommand,
		},
		{
			Name:      "build",
			Usage:     "build the scenario-1 demonstration tree into <file>",
			ArgsUsage: "<file>",
			Action:    buildCommand,
		},
		{
			Name:      "remap",
			Usage:     "round-trip a file through the v0/v2 remap layer",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "to", Usage: "target vocabulary: v0 or v2"},
			},
			Action: remapCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fatal(err.Error())
	}
}
