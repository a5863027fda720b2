package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/codegangsta/cli"
	humanize "github.com/dustin/go-humanize"
	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/go-arf/arf"
	"github.com/robert-malhotra/go-arf/catalog"
	"github.com/robert-malhotra/go-arf/hdf5"
)

var usage = `
	arfinfo inspects and edits ARF recording files. It lists entries and
	datasets, checks file versions, reads and appends to the file log,
	creates entries and indexes files into a SQLite catalog.

	Settings are read from --config, or $HOME/.arfinfo.yaml when present:

		compression: 1       # deflate level for imported data, -1 for none
		chunk_size: 0        # samples per chunk, 0 to pick from the data size
		catalog: arf-catalog.db
		verbosity: 0
		metrics: false       # print I/O metrics when a command finishes
	`

// arfInfo holds the state shared by the subcommands.
type arfInfo struct {
	app *cli.App
	out io.Writer
	cfg Config

	// metrics is set when metrics should be printed on exit; dumped once
	// they have been.
	metrics bool
	dumped  bool
}

func newArfInfo(out io.Writer) *arfInfo {
	a := &arfInfo{out: out, cfg: DefaultConfig()}
	// -v is verbosity, as for glog.
	cli.VersionFlag = cli.BoolFlag{Name: "version", Usage: "print the version"}
	app := cli.NewApp()
	app.Name = "arfinfo"
	app.Usage = usage
	app.Version = arf.LibraryVersion
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML config file (default: $HOME/.arfinfo.yaml)",
		},
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "print I/O metrics when the command finishes",
		},
		cli.IntFlag{
			Name:  "verbosity, v",
			Usage: "log verbosity",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "ls",
			Usage:     "Lists the entries and datasets of a file.",
			ArgsUsage: "FILE",
			Action:    a.cmdList,
		},
		{
			Name:      "check",
			Usage:     "Checks that a file has a supported ARF version.",
			ArgsUsage: "FILE",
			Action:    a.cmdCheck,
		},
		{
			Name:      "log",
			Usage:     "Prints the file log, or appends MESSAGE to it.",
			ArgsUsage: "FILE [MESSAGE...]",
			Action:    a.cmdLog,
		},
		{
			Name:      "entry",
			Usage:     "Creates an entry stamped with the current time.",
			ArgsUsage: "FILE NAME",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "attr, a",
					Usage: "entry attribute as key=value",
				},
				cli.StringFlag{
					Name:  "pcm",
					Usage: "raw little-endian 16-bit samples to store as an acoustic dataset",
				},
				cli.Float64Flag{
					Name:  "rate",
					Usage: "sampling rate of the --pcm data in Hz",
					Value: 20000,
				},
				cli.StringFlag{
					Name:  "units",
					Usage: "units of the --pcm data",
				},
			},
			Action: a.cmdEntry,
		},
		{
			Name:      "catalog",
			Usage:     "Indexes files into a SQLite catalog.",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "db",
					Usage: "catalog database (default: catalog from the config)",
				},
			},
			Action: a.cmdCatalog,
		},
		{
			Name:      "stats",
			Usage:     "Reads every dataset of the given files and prints I/O metrics.",
			ArgsUsage: "[FILE...]",
			Action:    a.cmdStats,
		},
	}
	app.Before = a.before
	app.After = a.after
	a.app = app

	for i := range a.app.Commands {
		a.app.Commands[i].HelpName = a.app.Commands[i].Name
	}
	return a
}

func (a *arfInfo) run(args []string) error {
	return a.app.Run(args)
}

// before loads the config and applies the global flags.
func (a *arfInfo) before(c *cli.Context) error {
	cfg, err := LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	a.cfg = cfg
	v := cfg.Verbosity
	if c.GlobalIsSet("verbosity") {
		v = c.GlobalInt("verbosity")
	}
	if err := flag.Set("v", strconv.Itoa(v)); err != nil {
		log.Warningf("setting verbosity: %v", err)
	}
	a.metrics = cfg.Metrics || c.GlobalBool("metrics")
	return nil
}

func (a *arfInfo) after(c *cli.Context) error {
	if !a.metrics || a.dumped {
		return nil
	}
	a.dumped = true
	return dumpMetrics(a.out, prometheus.DefaultGatherer)
}

func needArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s: expected %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}

// cmdList implements the "ls" subcommand.
func (a *arfInfo) cmdList(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	f, err := arf.Open(c.Args().First(), "r")
	if err != nil {
		return err
	}
	defer f.Close()

	names, err := f.Entries()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		if err := listEntry(tw, f, name); err != nil {
			log.Errorf("%s: %v", name, err)
		}
	}
	if msgs, err := f.ReadLog(); err != nil {
		log.Errorf("log: %v", err)
	} else if len(msgs) > 0 {
		fmt.Fprintf(tw, "/%s\t%d messages\n", arf.LogName, len(msgs))
	}
	return tw.Flush()
}

func listEntry(w io.Writer, f *arf.File, name string) error {
	e, err := f.OpenEntry(name)
	if err != nil {
		return err
	}
	defer e.Close()
	if ts, err := e.Timestamp(); err == nil {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Path(), ts, e.UUID(), humanize.Time(ts.Time()))
	} else {
		fmt.Fprintf(w, "%s\t-\t%s\n", e.Path(), e.UUID())
	}
	members, err := e.Members()
	if err != nil {
		return err
	}
	for _, m := range members {
		if k, err := e.Kind(m); err != nil || k != hdf5.KindDataset {
			continue
		}
		d, err := e.OpenDataset(m)
		if err != nil {
			log.Errorf("%s/%s: %v", e.Path(), m, err)
			continue
		}
		describe(w, d)
		d.Close()
	}
	return nil
}

// describe prints one line about d: shape, storage type, units, data type,
// chunking and storage size.
func describe(w io.Writer, d *hdf5.Dataset) {
	datatype := "-"
	if dt, err := arf.DataTypeOf(d); err == nil {
		datatype = dt.String()
	}
	units := arf.Units(d)
	if units == "" {
		units = "-"
	}
	layout := d.Layout()
	if chunks := d.Chunks(); chunks != nil {
		layout = fmt.Sprintf("chunks %v", chunks)
	}
	if filters := d.Filters(); len(filters) > 0 {
		layout += " " + strings.Join(filters, ",")
	}
	fmt.Fprintf(w, "  %s\t%v\t%s\t%s\t%s\t%s\t%s\n",
		d.Name(), d.Shape(), d.Datatype(), units, datatype, layout, humanize.Bytes(d.StorageSize()))
}

// cmdCheck implements the "check" subcommand.
func (a *arfInfo) cmdCheck(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	for _, path := range c.Args() {
		f, err := arf.Open(path, "r")
		if err != nil {
			return err
		}
		ver, err := arf.CheckVersion(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(a.out, "%s: arf %s\n", path, ver)
	}
	return nil
}

// cmdLog implements the "log" subcommand.
func (a *arfInfo) cmdLog(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	path := c.Args().First()
	if c.NArg() > 1 {
		f, err := arf.Open(path, "a")
		if err != nil {
			return err
		}
		if err := f.Log(strings.Join(c.Args().Tail(), " ")); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	f, err := arf.Open(path, "r")
	if err != nil {
		return err
	}
	defer f.Close()
	msgs, err := f.ReadLog()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		ts := arf.Timestamp{Sec: m.Sec, Usec: m.Usec}
		fmt.Fprintf(a.out, "%s  %s\n", ts, m.Msg)
	}
	return nil
}

// cmdEntry implements the "entry" subcommand.
func (a *arfInfo) cmdEntry(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	path, name := c.Args().Get(0), c.Args().Get(1)
	var attrs []arf.Attr
	for _, kv := range c.StringSlice("attr") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("bad attribute %q, want key=value", kv)
		}
		attrs = append(attrs, arf.Attr{Name: k, Value: parseValue(v)})
	}

	var pcm []int16
	if p := c.String("pcm"); p != "" {
		var err error
		if pcm, err = readPCM(p); err != nil {
			return err
		}
	}

	f, err := arf.Open(path, "a")
	if err != nil {
		return err
	}
	e, err := f.CreateEntry(name, arf.Now(), arf.WithAttrs(attrs...))
	if err != nil {
		f.Close()
		return err
	}
	if pcm != nil {
		opts := []arf.DatasetOption{
			arf.Compression(a.cfg.Compression),
			arf.SamplingRate(c.Float64("rate")),
		}
		if a.cfg.ChunkSize > 0 {
			opts = append(opts, arf.ChunkSize(a.cfg.ChunkSize))
		}
		if _, err := e.CreateDataset("pcm", pcm, c.String("units"), arf.TypeAcoustic, opts...); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Log(fmt.Sprintf("created entry %s", e.Path())); err != nil {
		log.Warningf("logging to %s: %v", path, err)
	}
	fmt.Fprintf(a.out, "%s %s\n", e.Path(), e.UUID())
	return f.Close()
}

// parseValue makes an attribute value from command line text: an integer,
// a number, or else the text itself.
func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return x
	}
	return s
}

func readPCM(path string) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%s: odd number of bytes for 16-bit samples", path)
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}

// cmdCatalog implements the "catalog" subcommand.
func (a *arfInfo) cmdCatalog(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	db := c.String("db")
	if db == "" {
		db = a.cfg.Catalog
	}
	cat, err := catalog.Open(db)
	if err != nil {
		return err
	}
	defer cat.Close()

	var errs []error
	for _, path := range c.Args() {
		if err := addToCatalog(cat, path); err != nil {
			log.Errorf("%s: %v", path, err)
			errs = append(errs, err)
		}
	}
	files, entries, datasets, err := cat.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d files, %d entries, %d datasets\n", db, files, entries, datasets)
	return errors.Join(errs...)
}

func addToCatalog(cat *catalog.Catalog, path string) error {
	f, err := arf.Open(path, "r")
	if err != nil {
		return err
	}
	defer f.Close()
	return cat.AddFile(f)
}

// cmdStats implements the "stats" subcommand.
func (a *arfInfo) cmdStats(c *cli.Context) error {
	var total, elems uint64
	for _, path := range c.Args() {
		n, k, err := readAll(path)
		if err != nil {
			return err
		}
		total += n
		elems += k
	}
	if c.NArg() > 0 {
		fmt.Fprintf(a.out, "read %s elements from %s of storage\n", humanize.Comma(int64(elems)), humanize.Bytes(total))
	}
	a.dumped = true
	return dumpMetrics(a.out, prometheus.DefaultGatherer)
}

// readAll reads every dataset in the file at path and returns the storage
// bytes and elements read.
func readAll(path string) (storage, elems uint64, err error) {
	f, err := hdf5.OpenFile(path, "r")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	err = f.Walk(func(p string, obj any, err error) error {
		if err != nil {
			log.Warningf("%s: %v", p, err)
			return nil
		}
		d, ok := obj.(*hdf5.Dataset)
		if !ok {
			return nil
		}
		t, err := d.Datatype().GoType()
		if err != nil {
			log.V(1).Infof("%s: skipping %v", p, err)
			return nil
		}
		buf := reflect.New(reflect.SliceOf(t))
		if err := d.Read(buf.Interface()); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		storage += d.StorageSize()
		elems += uint64(buf.Elem().Len())
		return nil
	})
	return storage, elems, err
}
