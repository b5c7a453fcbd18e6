package scripting_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfxref/document"
	"github.com/wudi/pdfxref/internal/pdftest"
	"github.com/wudi/pdfxref/ir/raw"
	"github.com/wudi/pdfxref/scripting"
	"github.com/wudi/pdfxref/stream"
)

func TestExecuteCancellation(t *testing.T) {
	e := scripting.NewEngine(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, "loop", "while (true) {}")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	v, err := e.Execute(context.Background(), "sum", "1 + 1")
	require.NoError(t, err, "engine should recover after an interrupt")
	assert.EqualValues(t, 2, v)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = e.Execute(ctx, "answer", "42")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile(t *testing.T) {
	assert.NoError(t, scripting.Compile("ok", "function f() { return 1 }"))
	err := scripting.Compile("broken", "function (")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile broken")
}

func jsAction(src string) string {
	return fmt.Sprintf("<< /S /JavaScript /JS %s >>", pdftest.Format(raw.Str([]byte(src))))
}

func openScriptedDoc(t *testing.T) *document.Document {
	t.Helper()
	b := pdftest.New()
	b.Object(1, `<< /Type /Catalog /Pages 2 0 R /OpenAction 12 0 R /PageLabels << /Nums [0 << /S /r >>] >>
/Names << /Dests << /Names [(intro) [3 0 R /Fit]] >> /JavaScript << /Names [(a) 10 0 R (b) 11 0 R (c) 13 0 R] >> >> >>`)
	b.Object(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	b.Object(4, "<< /Type /Page /Parent 2 0 R >>")
	b.Object(5, "<< /Title (Report) /Team (ops) >>")
	b.Object(10, jsAction("app.alert(info.Title + ' ' + info.Team + ' ' + numPages)"))
	b.Object(11, jsAction("var label = getPageLabel(1);"))
	b.Object(12, jsAction("gotoNamedDest('intro'); gotoNamedDest('nowhere'); console.println(label); label"))
	b.Object(13, jsAction("missing.call()"))
	off := b.XRefTable("/Root 1 0 R /Info 5 0 R")
	b.StartXRef(off)

	doc, err := document.Open(context.Background(), stream.Memory(b.Bytes()), document.Config{})
	require.NoError(t, err)
	return doc
}

func TestRunDocumentScripts(t *testing.T) {
	ctx := context.Background()
	doc := openScriptedDoc(t)
	scripts, err := doc.Catalog().JavaScript(ctx)
	require.NoError(t, err)
	for _, s := range scripts {
		require.NoError(t, scripting.Compile(s.Name, s.Source))
	}

	host, err := scripting.NewDocumentHost(ctx, doc, nil)
	require.NoError(t, err)
	e := scripting.NewEngine(nil)
	require.NoError(t, e.Bind(host))

	results := scripting.RunDocumentScripts(ctx, e, scripts)
	require.Len(t, results, 4)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"a", "b", "c", "OpenAction"}, names)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	require.NoError(t, results[3].Err)
	assert.Equal(t, "ii", results[3].Value)

	assert.Equal(t, []string{"Report ops 2"}, host.Alerts)
	assert.Equal(t, []string{"ii"}, host.Output)
	assert.Equal(t, "intro", host.Dest)
}

func TestPageLabelFallback(t *testing.T) {
	b := pdftest.New()
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R >>")
	off := b.XRefTable("/Root 1 0 R")
	b.StartXRef(off)
	doc, err := document.Open(context.Background(), stream.Memory(b.Bytes()), document.Config{})
	require.NoError(t, err)

	host, err := scripting.NewDocumentHost(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, host.NumPages())
	assert.Equal(t, "1", host.PageLabel(0))
	assert.Empty(t, host.PageLabel(1))
	assert.Empty(t, host.Info())
	assert.False(t, host.GotoNamedDest("intro"))
}
