package docparser

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractText_PlainText(t *testing.T) {
	text, err := ExtractText([]byte("  hello\n\n  world  "), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractText_HTMLStripsMarkup(t *testing.T) {
	html := `<html><head><style>body{}</style></head><body>
		<script>var x = 1;</script>
		<h1>Heading</h1><p>Body text.</p></body></html>`
	text, err := ExtractText([]byte(html), "page.html")
	require.NoError(t, err)
	assert.Equal(t, "Heading Body text.", text)
	assert.NotContains(t, text, "var x")
}

func TestExtractText_MarkdownRendersThenStrips(t *testing.T) {
	md := "# Title\n\nSome *emphasis* and [a link](https://x.test).\n"
	text, err := ExtractText([]byte(md), "README.md")
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some emphasis and a link")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "](")
}

func TestExtractText_UnsupportedExtension(t *testing.T) {
	_, err := ExtractText([]byte("data"), "binary.bin")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("report.PDF"))
	assert.True(t, Supported("notes.md"))
	assert.True(t, Supported("sheet.ods"))
	assert.False(t, Supported("image.png"))
	assert.False(t, Supported("noextension"))
}

func TestExtractXMLText(t *testing.T) {
	xml := `<w:p><w:t>first</w:t></w:p><w:tbl>ignored</w:tbl><w:t xml:space="preserve">second</w:t>`
	assert.Equal(t, "first second ", extractXMLText(xml, "w:t"))
}

func TestExtractArchive_SupportedMembersOnly(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"docs/a.txt":  []byte("alpha text"),
		"docs/b.html": []byte("<p>beta text</p>"),
		"skip.bin":    []byte{0x00, 0x01},
	})

	docs, err := ExtractArchive(data)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byName := map[string]string{}
	for _, d := range docs {
		byName[d.Name] = d.Text
	}
	assert.Equal(t, "alpha text", byName["a.txt"])
	assert.Equal(t, "beta text", byName["b.html"])
}

func TestExtractArchive_RejectsOversizedMember(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"big.txt": bytes.Repeat([]byte{'a'}, maxMemberSize+1),
	})

	_, err := ExtractArchive(data)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestExtractArchive_RejectsOversizedTotal(t *testing.T) {
	// Eleven members at the per-member cap stay individually legal but
	// push the total past the archive cap. Zero bytes deflate to almost
	// nothing, so the test archive itself stays small.
	files := make(map[string][]byte, 11)
	member := bytes.Repeat([]byte{0}, maxMemberSize)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		files[name+".txt"] = member
	}

	_, err := ExtractArchive(buildZip(t, files))
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestExtractArchive_RejectsUnderdeclaredMemberSize(t *testing.T) {
	// A forged central directory can claim a small uncompressed size
	// while the deflate stream expands past the cap. The read-side
	// check must still reject it.
	payload := bytes.Repeat([]byte{0}, maxMemberSize+1)

	var deflated bytes.Buffer
	fw, err := flate.NewWriter(&deflated, flate.BestSpeed)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "innocent.txt",
		Method:             zip.Deflate,
		CRC32:              crc32.ChecksumIEEE(payload),
		CompressedSize64:   uint64(deflated.Len()),
		UncompressedSize64: 64,
	})
	require.NoError(t, err)
	_, err = w.Write(deflated.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractArchive(buf.Bytes())
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestExtractArchive_RejectsPathTraversal(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"../evil.txt": []byte("escape"),
	})

	_, err := ExtractArchive(data)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestExtractArchive_NotAZip(t *testing.T) {
	_, err := ExtractArchive([]byte("plain text, not a zip"))
	assert.Error(t, err)
}
