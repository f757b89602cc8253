package extract_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgescout/internal/extract"
)

func TestSupported(t *testing.T) {
	assert.True(t, extract.Supported("manual.pdf"))
	assert.True(t, extract.Supported("notes.DOCX"))
	assert.True(t, extract.Supported("readme.md"))
	assert.True(t, extract.Supported("plain.txt"))
	assert.False(t, extract.Supported("archive.zip"))
	assert.False(t, extract.Supported("noext"))
}

func TestFromReader_Plain(t *testing.T) {
	t.Run("Text Passthrough", func(t *testing.T) {
		res, err := extract.FromReader(strings.NewReader("  hello world  "), "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello world", res.Text)
		assert.Equal(t, 1, res.Pages)
	})

	t.Run("Collapses Blank Runs", func(t *testing.T) {
		res, err := extract.FromReader(strings.NewReader("one\n\n\n\n\ntwo"), "a.md")
		require.NoError(t, err)
		assert.Equal(t, "one\n\ntwo", res.Text)
	})

	t.Run("Markdown Boilerplate Stripped", func(t *testing.T) {
		md := "# Guide\n\n[Edit this page](https://example.com/edit)\n\nReal content here."
		res, err := extract.FromReader(strings.NewReader(md), "guide.md")
		require.NoError(t, err)
		assert.NotContains(t, res.Text, "Edit this page")
		assert.Contains(t, res.Text, "Real content here.")
	})

	t.Run("Unsupported Extension", func(t *testing.T) {
		_, err := extract.FromReader(strings.NewReader("x"), "a.exe")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file type")
	})
}

func TestFromReader_BadBinary(t *testing.T) {
	t.Run("Corrupt PDF", func(t *testing.T) {
		_, err := extract.FromReader(strings.NewReader("not a pdf"), "a.pdf")
		assert.Error(t, err)
	})

	t.Run("Corrupt DOCX", func(t *testing.T) {
		_, err := extract.FromReader(strings.NewReader("not a zip"), "a.docx")
		assert.Error(t, err)
	})
}
