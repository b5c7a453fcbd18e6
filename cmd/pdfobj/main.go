package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/midbel/hexdump"

	"github.com/wudi/pdfxref/catalog"
	"github.com/wudi/pdfxref/document"
	"github.com/wudi/pdfxref/filters"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/loader"
	"github.com/wudi/pdfxref/observability"
	"github.com/wudi/pdfxref/recovery"
	"github.com/wudi/pdfxref/scripting"
	"github.com/wudi/pdfxref/security"
	"github.com/wudi/pdfxref/stream"
)

type options struct {
	pdfPath   string
	password  string
	object    string
	rawBytes  bool
	decode    bool
	pages     bool
	outline   bool
	dests     bool
	js        bool
	runJS     bool
	info      bool
	recover   bool
	chunkSize int64
	verbose   bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfobj: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfobj: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfobj [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.object, "obj", "", "Print object `N` or \"N G\"")
	flag.BoolVar(&opts.rawBytes, "raw", false, "With -obj, hex dump the stored bytes of a stream")
	flag.BoolVar(&opts.decode, "decode", false, "With -obj, hex dump the decoded bytes of a stream")
	flag.BoolVar(&opts.pages, "pages", false, "List page references and labels")
	flag.BoolVar(&opts.outline, "outline", false, "Dump the document outline")
	flag.BoolVar(&opts.dests, "dests", false, "Dump named destinations")
	flag.BoolVar(&opts.js, "js", false, "Dump document JavaScript")
	flag.BoolVar(&opts.runJS, "run-js", false, "Execute document JavaScript and report the results")
	flag.BoolVar(&opts.info, "info", false, "Dump the document information dictionary")
	flag.BoolVar(&opts.recover, "recover", false, "Rebuild a damaged cross-reference index by scanning the file")
	flag.Int64Var(&opts.chunkSize, "chunk", 0, "Read the file in chunks of `size` bytes on demand, as over a network")
	flag.StringVar(&opts.password, "password", "", "Password to open encrypted PDFs")
	flag.BoolVar(&opts.verbose, "v", false, "Log debug messages to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = flag.Arg(0)
	if (opts.rawBytes || opts.decode) && opts.object == "" {
		return options{}, fmt.Errorf("-raw and -decode need -obj")
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	file, err := os.Open(opts.pdfPath)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	cfg := document.Config{Logger: log, Password: opts.password}
	if opts.recover {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	var src stream.Source
	if opts.chunkSize > 0 {
		st, err := file.Stat()
		if err != nil {
			return err
		}
		chunked := stream.NewChunked(st.Size(), opts.chunkSize)
		mgr := stream.NewManager(chunked, stream.RangeFetcherFunc(func(_ context.Context, begin, end int64) ([]byte, error) {
			buf := make([]byte, end-begin)
			_, err := file.ReadAt(buf, begin)
			if err == io.EOF {
				err = nil
			}
			return buf, err
		}), stream.WithLogger(log))
		defer func() {
			log.Info("range requests", observability.Int("requests", mgr.Requests()))
		}()
		cfg.Requester = mgr
		src = chunked
	} else {
		data, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("read pdf: %w", err)
		}
		src = stream.Memory(data)
	}

	doc, err := document.Open(ctx, src, cfg)
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}
	cat := doc.Catalog()

	if opts.object != "" {
		return dumpObject(ctx, doc, cfg.Requester, opts)
	}

	summary := map[string]interface{}{
		"version":    doc.Version(),
		"startxref":  doc.StartXRef(),
		"linearized": doc.Linearization() != nil,
		"recovered":  doc.Recovered(),
		"trailer":    format(doc.Trailer()),
	}
	if err := emitSection("document", summary); err != nil {
		return err
	}

	if opts.info {
		info, err := doc.Info(ctx)
		if err != nil {
			return fmt.Errorf("info: %w", err)
		}
		if err := emitSection("info", info); err != nil {
			return err
		}
	}

	if opts.pages {
		pages, err := listPages(ctx, doc, cfg.Requester)
		if err != nil {
			return err
		}
		if err := emitSection("pages", pages); err != nil {
			return err
		}
	}

	if opts.outline {
		items, err := cat.DocumentOutline(ctx)
		if err != nil {
			return fmt.Errorf("outline: %w", err)
		}
		if err := emitSection("outline", outlineView(items)); err != nil {
			return err
		}
	}

	if opts.dests {
		dests, err := cat.Destinations(ctx)
		if err != nil {
			return fmt.Errorf("destinations: %w", err)
		}
		out := make(map[string]string, len(dests))
		for k, v := range dests {
			out[k] = format(v)
		}
		if err := emitSection("destinations", out); err != nil {
			return err
		}
	}

	if opts.js || opts.runJS {
		scripts, err := cat.JavaScript(ctx)
		if err != nil {
			return fmt.Errorf("javascript: %w", err)
		}
		if opts.js {
			if err := emitSection("javascript", scripts); err != nil {
				return err
			}
		}
		if opts.runJS {
			if err := runScripts(ctx, doc, scripts, log); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseRef(s string) (raw.ObjectRef, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return raw.ObjectRef{}, fmt.Errorf("invalid object reference %q", s)
	}
	var ref raw.ObjectRef
	var err error
	if ref.Num, err = strconv.Atoi(fields[0]); err != nil {
		return ref, fmt.Errorf("invalid object number %q", fields[0])
	}
	if len(fields) == 2 {
		if ref.Gen, err = strconv.Atoi(fields[1]); err != nil {
			return ref, fmt.Errorf("invalid generation %q", fields[1])
		}
	}
	return ref, nil
}

func dumpObject(ctx context.Context, doc *document.Document, req stream.Requester, opts options) error {
	ref, err := parseRef(opts.object)
	if err != nil {
		return err
	}
	x := doc.XRef()
	obj, err := x.FetchAsync(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ref, err)
	}
	if e, ok := x.Entry(ref.Num); ok {
		fmt.Printf("%% %s\n", e)
	}
	fmt.Printf("%d %d obj\n%s\nendobj\n", ref.Num, ref.Gen, format(obj))

	s, ok := raw.AsStream(obj)
	if !ok || !(opts.rawBytes || opts.decode) {
		return nil
	}
	holder := raw.Dict()
	holder.Set("S", s)
	l := loader.New(x, holder, []string{"S"}, loader.Config{Requester: req})
	if err := l.Load(ctx); err != nil {
		return fmt.Errorf("load %s: %w", ref, err)
	}
	var body []byte
	if opts.decode {
		pipe := filters.DefaultPipeline(filters.Limits{MaxDecompressedSize: security.DefaultLimits().MaxDecompressedSize})
		body, err = pipe.DecodeStream(ctx, s)
	} else {
		body, err = s.RawData()
	}
	if err != nil {
		return fmt.Errorf("stream %s: %w", ref, err)
	}
	fmt.Println(hexdump.Dump(body))
	return nil
}

type pageView struct {
	Index int    `json:"index"`
	Ref   string `json:"ref,omitempty"`
	Label string `json:"label,omitempty"`
}

func listPages(ctx context.Context, doc *document.Document, req stream.Requester) ([]pageView, error) {
	cat := doc.Catalog()
	// prefetch the page tree so the walk below never waits on single ranges
	l := loader.New(doc.XRef(), cat.Dict(), []string{"Pages", "PageLabels"}, loader.Config{Requester: req})
	if err := l.Load(ctx); err != nil {
		return nil, fmt.Errorf("load page tree: %w", err)
	}
	n, err := cat.NumPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	reachable, err := cat.CountPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	if n > reachable {
		return nil, fmt.Errorf("pages: %w: Count %d but %d pages in the tree", catalog.ErrFormat, n, reachable)
	}
	labels, err := cat.PageLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("page labels: %w", err)
	}
	out := make([]pageView, 0, n)
	for i := 0; i < n; i++ {
		_, ref, err := cat.GetPageDict(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		v := pageView{Index: i}
		if ref.Num > 0 {
			v.Ref = ref.String()
		}
		if i < len(labels) {
			v.Label = labels[i]
		}
		out = append(out, v)
	}
	return out, nil
}

type outlineNode struct {
	Title  string         `json:"title"`
	Dest   string         `json:"dest,omitempty"`
	URL    string         `json:"url,omitempty"`
	Action string         `json:"action,omitempty"`
	Count  *int           `json:"count,omitempty"`
	Bold   bool           `json:"bold,omitempty"`
	Italic bool           `json:"italic,omitempty"`
	Items  []*outlineNode `json:"items,omitempty"`
}

func outlineView(items []*catalog.OutlineItem) []*outlineNode {
	out := make([]*outlineNode, 0, len(items))
	for _, it := range items {
		n := &outlineNode{
			Title:  it.Title,
			URL:    it.URL,
			Action: it.Action,
			Count:  it.Count,
			Bold:   it.Bold,
			Italic: it.Italic,
			Items:  outlineView(it.Items),
		}
		if it.Dest != nil {
			n.Dest = format(it.Dest)
		}
		out = append(out, n)
	}
	return out
}

func runScripts(ctx context.Context, doc *document.Document, scripts []catalog.Script, log observability.Logger) error {
	host, err := scripting.NewDocumentHost(ctx, doc, log)
	if err != nil {
		return fmt.Errorf("script host: %w", err)
	}
	engine := scripting.NewEngine(log)
	if err := engine.Bind(host); err != nil {
		return err
	}
	type scriptResult struct {
		Name  string      `json:"name"`
		Value interface{} `json:"value,omitempty"`
		Error string      `json:"error,omitempty"`
	}
	var results []scriptResult
	for _, r := range scripting.RunDocumentScripts(ctx, engine, scripts) {
		sr := scriptResult{Name: r.Name, Value: r.Value}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		results = append(results, sr)
	}
	return emitSection("script results", map[string]interface{}{
		"results": results,
		"alerts":  host.Alerts,
		"output":  host.Output,
	})
}

func emitSection(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	fmt.Printf("== %s ==\n%s\n\n", name, data)
	return nil
}
