package geosxml

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

func writeDeck(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func includeDeck(files ...string) string {
	var b strings.Builder
	b.WriteString("<Problem>\n  <Included>\n")
	for _, f := range files {
		b.WriteString(`    <File name="` + f + `"/>` + "\n")
	}
	b.WriteString("  </Included>\n</Problem>\n")
	return b.String()
}

func newTestExpander(t *testing.T, modify func(*Config)) *Expander {
	t.Helper()
	config := DefaultConfig()
	config.LogLevel = "off"
	if modify != nil {
		modify(config)
	}
	e, err := NewWithConfig(config)
	require.NoError(t, err)
	e.SetLogger(NewLogger(nil, LogOff))
	return e
}

func childTags(doc *xml.Document, id xml.NodeID) []string {
	var out []string
	for _, c := range doc.Children(id) {
		out = append(out, doc.Tag(c))
	}
	return out
}

func TestIncludedReplacedByContent(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "mesh.xml", `<Problem><Mesh nx="10"/></Problem>`)
	main := writeDeck(t, dir, "main.xml", `<Problem>
  <Included>
    <File name="mesh.xml"/>
  </Included>
  <Events/>
</Problem>`)

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)

	doc := result.Document
	assert.Equal(t, []string{"Mesh", "Events"}, childTags(doc, doc.Root()))
	nx, ok := doc.Attr(doc.FindAll("Mesh")[0], "nx")
	require.True(t, ok)
	assert.Equal(t, "10", nx)
	assert.Empty(t, doc.FindAll("Included"))
	assert.Equal(t, []string{main, filepath.Join(dir, "mesh.xml")}, result.Files)
}

func TestNestedIncludesResolveRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "sub/solvers.xml", `<Problem><Solvers/></Problem>`)
	writeDeck(t, dir, "sub/physics.xml", `<Problem>
  <Included><File name="solvers.xml"/></Included>
  <Constitutive/>
</Problem>`)
	writeDeck(t, dir, "events.xml", `<Problem><Events/><Outputs/></Problem>`)
	main := writeDeck(t, dir, "main.xml", includeDeck("sub/physics.xml", "events.xml"))

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)
	assert.Equal(t, []string{"Solvers", "Constitutive", "Events", "Outputs"}, childTags(result.Document, result.Document.Root()))
	assert.Len(t, result.Files, 4)
}

func TestSameFileIncludedTwiceIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "common.xml", `<Problem><Common/></Problem>`)
	writeDeck(t, dir, "a.xml", includeDeck("common.xml"))
	writeDeck(t, dir, "b.xml", includeDeck("common.xml"))
	main := writeDeck(t, dir, "main.xml", includeDeck("a.xml", "b.xml"))

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)
	assert.Equal(t, []string{"Common", "Common"}, childTags(result.Document, result.Document.Root()))
}

func TestCircularInclusion(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		chain []string
	}{
		{
			name:  "self",
			files: map[string]string{"main.xml": includeDeck("main.xml")},
			chain: []string{"main.xml"},
		},
		{
			name: "two files",
			files: map[string]string{
				"main.xml": includeDeck("a.xml"),
				"a.xml":    includeDeck("main.xml"),
			},
			chain: []string{"main.xml", "a.xml"},
		},
		{
			name: "three files below the root",
			files: map[string]string{
				"main.xml": includeDeck("a.xml"),
				"a.xml":    includeDeck("b.xml"),
				"b.xml":    includeDeck("c.xml"),
				"c.xml":    includeDeck("a.xml"),
			},
			chain: []string{"main.xml", "a.xml", "b.xml", "c.xml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeDeck(t, dir, name, content)
			}

			_, err := newTestExpander(t, nil).ProcessFile(filepath.Join(dir, "main.xml"))
			require.Error(t, err)
			var circular *CircularInclusionError
			require.ErrorAs(t, err, &circular)

			want := make([]string, len(tt.chain))
			for i, name := range tt.chain {
				want[i] = filepath.Join(dir, name)
			}
			assert.Equal(t, want, circular.Chain)

			var location *LocationError
			require.ErrorAs(t, err, &location)
			assert.Contains(t, location.NodePath, "Included")
		})
	}
}

func TestIncludeErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		main := writeDeck(t, dir, "main.xml", includeDeck("absent.xml"))

		_, err := newTestExpander(t, nil).ProcessFile(main)
		var notFound *IncludeNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, filepath.Join(dir, "absent.xml"), notFound.Path)
		assert.Equal(t, main, notFound.From)
	})

	t.Run("file without name", func(t *testing.T) {
		dir := t.TempDir()
		main := writeDeck(t, dir, "main.xml", `<Problem><Included><File/></Included></Problem>`)

		_, err := newTestExpander(t, nil).ProcessFile(main)
		var markup *MarkupError
		require.ErrorAs(t, err, &markup)
		assert.Equal(t, "File", markup.Element)
	})

	t.Run("unexpected child", func(t *testing.T) {
		dir := t.TempDir()
		main := writeDeck(t, dir, "main.xml", `<Problem><Included><Mesh/></Included></Problem>`)

		_, err := newTestExpander(t, nil).ProcessFile(main)
		var markup *MarkupError
		require.ErrorAs(t, err, &markup)
		assert.Equal(t, "Included", markup.Element)
	})

	t.Run("malformed included file", func(t *testing.T) {
		dir := t.TempDir()
		writeDeck(t, dir, "bad.xml", `<Problem><Mesh></Problem>`)
		main := writeDeck(t, dir, "main.xml", includeDeck("bad.xml"))

		_, err := newTestExpander(t, nil).ProcessFile(main)
		require.Error(t, err)
		assert.True(t, IsDocumentError(err))
		var syntax *xml.SyntaxError
		require.ErrorAs(t, err, &syntax)
	})

	t.Run("too deep", func(t *testing.T) {
		dir := t.TempDir()
		writeDeck(t, dir, "c.xml", `<Problem><Leaf/></Problem>`)
		writeDeck(t, dir, "b.xml", includeDeck("c.xml"))
		writeDeck(t, dir, "a.xml", includeDeck("b.xml"))
		main := writeDeck(t, dir, "main.xml", includeDeck("a.xml"))

		e := newTestExpander(t, func(c *Config) { c.MaxIncludeDepth = 2 })
		_, err := e.ProcessFile(main)
		require.Error(t, err)
		assert.True(t, IsDocumentError(err))

		e = newTestExpander(t, func(c *Config) { c.MaxIncludeDepth = 3 })
		_, err = e.ProcessFile(main)
		require.NoError(t, err)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := newTestExpander(t, nil).ProcessFile(filepath.Join(t.TempDir(), "none.xml"))
		assert.True(t, IsDocumentError(err))
	})
}

const parameterDeck = `<Problem>
  <Parameters>
    <Parameter name="L" value="3.0"/>
    <Parameter name="name" value="box"/>
  </Parameters>
  <Mesh nx="` + "`$L$ * 2`" + `" label="$name$_$name$" xMax="{ $L$, 1 }"/>
</Problem>`

func TestParametersAndExpressions(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", parameterDeck)

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)

	doc := result.Document
	assert.Empty(t, doc.FindAll("Parameters"))
	mesh := doc.FindAll("Mesh")[0]

	nx, _ := doc.Attr(mesh, "nx")
	assert.Equal(t, "6", nx)
	label, _ := doc.Attr(mesh, "label")
	assert.Equal(t, "box_box", label)
	xMax, _ := doc.Attr(mesh, "xMax")
	assert.Equal(t, "{ 3.0, 1 }", xMax)

	assert.Equal(t, []string{"L", "name"}, result.Parameters.Names())
}

func TestProcessOutputSerialization(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", parameterDeck)

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)

	want := `<?xml version="1.0" ?>
<Problem>
  <Mesh nx="6" label="box_box" xMax="{ 3.0, 1 }"/>
</Problem>
`
	assert.Equal(t, want, result.String())
}

func TestUnitsInExpressions(t *testing.T) {
	doc, err := xml.Parse(strings.NewReader("<Problem><Box length=\"`2 m + 200 cm`\" area=\"`1[ft] * 1[ft]`\"/></Problem>"))
	require.NoError(t, err)

	result, err := newTestExpander(t, nil).Process(doc, "")
	require.NoError(t, err)

	box := result.Document.FindAll("Box")[0]
	length, _ := result.Document.Attr(box, "length")
	assert.Equal(t, "4", length)
	area, _ := result.Document.Attr(box, "area")
	assert.Equal(t, "0.09290304", area)
}

func TestParametersFromIncludedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "params.xml", `<Problem>
  <Parameters><Parameter name="dx" value="0.5 m"/></Parameters>
</Problem>`)
	main := writeDeck(t, dir, "main.xml", `<Problem>
  <Included><File name="params.xml"/></Included>
  <Mesh spacing="`+"`dx * 4`"+`"/>
</Problem>`)

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)
	spacing, _ := result.Document.Attr(result.Document.FindAll("Mesh")[0], "spacing")
	assert.Equal(t, "2", spacing)
}

func TestNestedParameterReferences(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", `<Problem>
  <Parameters>
    <Parameter name="area" value="`+"`$side$ * $side$`"+`"/>
    <Parameter name="side" value="3"/>
  </Parameters>
  <Box area="$area$"/>
</Problem>`)

	result, err := newTestExpander(t, nil).ProcessFile(main)
	require.NoError(t, err)
	area, _ := result.Document.Attr(result.Document.FindAll("Box")[0], "area")
	assert.Equal(t, "9", area)
	value, _ := result.Parameters.Get("area")
	assert.Equal(t, "`3 * 3`", value)
}

func TestParameterErrors(t *testing.T) {
	tests := []struct {
		name  string
		deck  string
		check func(t *testing.T, err error)
	}{
		{
			name: "undefined",
			deck: `<Problem><Mesh nx="$missing$"/></Problem>`,
			check: func(t *testing.T, err error) {
				var undefined *UndefinedParameterError
				require.ErrorAs(t, err, &undefined)
				assert.Equal(t, "missing", undefined.Name)

				var location *LocationError
				require.ErrorAs(t, err, &location)
				assert.Equal(t, "/Problem/Mesh", location.NodePath)
				assert.Equal(t, "nx", location.Attribute)
				assert.True(t, strings.HasSuffix(location.File, "main.xml"))
			},
		},
		{
			name: "undefined bare name in expression",
			deck: "<Problem><Mesh nx=\"`nCells + 1`\"/></Problem>",
			check: func(t *testing.T, err error) {
				assert.True(t, IsUndefinedParameterError(err))
			},
		},
		{
			name: "duplicate",
			deck: `<Problem>
  <Parameters><Parameter name="a" value="1"/></Parameters>
  <Parameters><Parameter name="a" value="2"/></Parameters>
</Problem>`,
			check: func(t *testing.T, err error) {
				var dup *DuplicateParameterError
				require.ErrorAs(t, err, &dup)
				assert.Equal(t, "a", dup.Name)
				assert.NotEqual(t, dup.First, dup.Second)
			},
		},
		{
			name: "circular",
			deck: `<Problem><Parameters>
  <Parameter name="a" value="$b$"/>
  <Parameter name="b" value="$a$"/>
</Parameters></Problem>`,
			check: func(t *testing.T, err error) {
				var circular *CircularParameterError
				require.ErrorAs(t, err, &circular)
				assert.Equal(t, []string{"a", "b", "a"}, circular.Chain)
			},
		},
		{
			name: "parameter without value",
			deck: `<Problem><Parameters><Parameter name="a"/></Parameters></Problem>`,
			check: func(t *testing.T, err error) {
				var markup *MarkupError
				require.ErrorAs(t, err, &markup)
			},
		},
		{
			name: "unterminated expression",
			deck: "<Problem><Mesh nx=\"`1 + 2\"/></Problem>",
			check: func(t *testing.T, err error) {
				assert.True(t, IsExpressionSyntaxError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := writeDeck(t, t.TempDir(), "main.xml", tt.deck)
			_, err := newTestExpander(t, nil).ProcessFile(main)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDuplicateAcrossIncludedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "a.xml", `<Problem><Parameters><Parameter name="k" value="1"/></Parameters></Problem>`)
	writeDeck(t, dir, "b.xml", `<Problem><Parameters><Parameter name="k" value="2"/></Parameters></Problem>`)
	main := writeDeck(t, dir, "main.xml", includeDeck("a.xml", "b.xml"))

	_, err := newTestExpander(t, nil).ProcessFile(main)
	var dup *DuplicateParameterError
	require.ErrorAs(t, err, &dup)
	assert.Contains(t, dup.First, "a.xml")
	assert.Contains(t, dup.Second, "b.xml")
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", parameterDeck)

	result, err := newTestExpander(t, nil).ProcessFile(main,
		WithOverrides(map[string]string{"L": "10", "extra": "1"}))
	require.NoError(t, err)

	nx, _ := result.Document.Attr(result.Document.FindAll("Mesh")[0], "nx")
	assert.Equal(t, "20", nx)
	extra, ok := result.Parameters.Get("extra")
	assert.True(t, ok)
	assert.Equal(t, "1", extra)
}

func TestSubstitutionIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", parameterDeck)
	e := newTestExpander(t, nil)

	first, err := e.ProcessFile(main)
	require.NoError(t, err)

	second, err := e.Process(first.Document, "")
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())

	t.Run("substituted text never forms a new token", func(t *testing.T) {
		tests := []struct {
			name string
			deck string
		}{
			{
				name: "in an attribute",
				deck: `<Problem>
  <Parameters>
    <Parameter name="a" value="$"/>
    <Parameter name="b" value="X"/>
  </Parameters>
  <M v="$a$b$"/>
</Problem>`,
			},
			{
				name: "in a parameter value",
				deck: `<Problem>
  <Parameters>
    <Parameter name="a" value="$"/>
    <Parameter name="b" value="X"/>
    <Parameter name="c" value="$a$b$"/>
  </Parameters>
  <M v="$c$"/>
</Problem>`,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := writeDeck(t, t.TempDir(), "main.xml", tt.deck)
				result, err := e.ProcessFile(path)
				var markup *MarkupError
				require.ErrorAs(t, err, &markup, "result: %v", result)
			})
		}
	})
}

func TestProcessLeavesInputUntouched(t *testing.T) {
	doc, err := xml.Parse(strings.NewReader(parameterDeck))
	require.NoError(t, err)
	before := doc.String()

	_, err = newTestExpander(t, nil).Process(doc, "")
	require.NoError(t, err)
	assert.Equal(t, before, doc.String())
}

func TestConvertUnitLiterals(t *testing.T) {
	deck := `<Problem><Box xMax="{ 1[ft], 2 [in] }" name="plain"/></Problem>`

	doc, err := xml.Parse(strings.NewReader(deck))
	require.NoError(t, err)

	result, err := newTestExpander(t, nil).Process(doc, "")
	require.NoError(t, err)
	xMax, _ := result.Document.Attr(result.Document.FindAll("Box")[0], "xMax")
	assert.Equal(t, "{ 1[ft], 2 [in] }", xMax, "conversion is off by default")

	e := newTestExpander(t, func(c *Config) { c.ConvertUnitLiterals = true })
	result, err = e.Process(doc, "")
	require.NoError(t, err)
	xMax, _ = result.Document.Attr(result.Document.FindAll("Box")[0], "xMax")
	assert.Equal(t, "{ 0.3048, 0.0508 }", xMax)

	tests := []struct {
		value string
		want  string
	}{
		{"1[km]", "1000"},
		{"{1[km],2[km]}", "{1000,2000}"},
		{"-5[cm] and .5[m]", "-0.05 and 0.5"},
		{"x3[m]", "x3[m]"},
		{"cb_2[m]", "cb_2[m]"},
		{"v1.5[m]", "v1.5[m]"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := e.convertUnitLiterals(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomDelimiters(t *testing.T) {
	doc, err := xml.Parse(strings.NewReader(`<Problem><Mesh nx="{{ 2 * 3 }}" keep="` + "`x`" + `"/></Problem>`))
	require.NoError(t, err)

	e := newTestExpander(t, func(c *Config) {
		c.ExpressionOpen = "{{"
		c.ExpressionClose = "}}"
	})
	result, err := e.Process(doc, "")
	require.NoError(t, err)

	mesh := result.Document.FindAll("Mesh")[0]
	nx, _ := result.Document.Attr(mesh, "nx")
	assert.Equal(t, "6", nx)
	keep, _ := result.Document.Attr(mesh, "keep")
	assert.Equal(t, "`x`", keep)
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	main := writeDeck(t, dir, "main.xml", parameterDeck)
	e := newTestExpander(t, nil)

	t.Run("explicit output", func(t *testing.T) {
		out := filepath.Join(dir, "flat.xml")
		written, err := e.CompileFile(main, out)
		require.NoError(t, err)
		assert.Equal(t, out, written)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `nx="6"`)
	})

	t.Run("generated output name", func(t *testing.T) {
		written, err := e.CompileFile(main, "")
		require.NoError(t, err)
		assert.Equal(t, dir, filepath.Dir(written))
		assert.True(t, strings.HasPrefix(filepath.Base(written), "prep_"))
		assert.True(t, strings.HasSuffix(written, ".xml"))

		other, err := e.CompileFile(main, "")
		require.NoError(t, err)
		assert.NotEqual(t, written, other)
	})

	t.Run("no temporary files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, entry := range entries {
			assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), entry.Name())
		}
	})

	t.Run("failed expansion writes nothing", func(t *testing.T) {
		bad := writeDeck(t, dir, "bad.xml", `<Problem><Mesh nx="$nope$"/></Problem>`)
		out := filepath.Join(dir, "bad_out.xml")
		_, err := e.CompileFile(bad, out)
		require.Error(t, err)
		_, statErr := os.Stat(out)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestContextCancellation(t *testing.T) {
	main := writeDeck(t, t.TempDir(), "main.xml", parameterDeck)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExpander(t, nil).ProcessFile(main, WithContext(ctx))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnusedParametersAreLogged(t *testing.T) {
	main := writeDeck(t, t.TempDir(), "main.xml", `<Problem>
  <Parameters>
    <Parameter name="used" value="1"/>
    <Parameter name="spare" value="2"/>
  </Parameters>
  <Mesh nx="$used$"/>
</Problem>`)

	var buf bytes.Buffer
	e := newTestExpander(t, nil)
	e.SetLogger(NewLogger(&buf, LogWarn))

	_, err := e.ProcessFile(main)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `Parameter "spare" is declared but never used`)
	assert.NotContains(t, buf.String(), `"used"`)
}

func TestSetLoggerDuringExpansion(t *testing.T) {
	main := writeDeck(t, t.TempDir(), "main.xml", parameterDeck)
	e := newTestExpander(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.ProcessFile(main)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			e.SetLogger(NewLogger(nil, LogDebug))
		}()
	}
	wg.Wait()

	e.SetLogger(nil)
	assert.Same(t, GetLogger(), e.Logger())
}

func TestDocumentCacheReuse(t *testing.T) {
	dir := t.TempDir()
	writeDeck(t, dir, "mesh.xml", `<Problem><Mesh nx="10"/></Problem>`)
	main := writeDeck(t, dir, "main.xml", includeDeck("mesh.xml"))
	e := newTestExpander(t, nil)

	_, err := e.ProcessFile(main)
	require.NoError(t, err)
	_, err = e.ProcessFile(main)
	require.NoError(t, err)

	hits, misses := e.Cache().Stats()
	assert.Equal(t, 2, misses)
	assert.Equal(t, 2, hits)
}
