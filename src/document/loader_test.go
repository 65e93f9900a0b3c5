package document_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursematch/src/document"
	"coursematch/src/fsutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_nursing.txt"), "Practical Nursing\nFaculty of Health")
	writeFile(t, filepath.Join(dir, "a_programming.md"), "# Computer Programming")
	writeFile(t, filepath.Join(dir, "codes.xlsx"), "not a document")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755))

	docs, err := document.NewLoader(fsutil.NewLocalFileStore()).LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, filepath.Join(dir, "a_programming.md"), docs[0].SourceID)
	assert.Equal(t, "# Computer Programming", docs[0].Text)
	assert.Equal(t, "md", docs[0].Metadata["type"])

	assert.Equal(t, filepath.Join(dir, "b_nursing.txt"), docs[1].SourceID)
	assert.Equal(t, "Practical Nursing\nFaculty of Health", docs[1].Text)
	assert.Equal(t, "b_nursing.txt", docs[1].Metadata["source"])
}

func TestLoadDirMissing(t *testing.T) {
	_, err := document.NewLoader(nil).LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "welding.pdf")
	pdf := gofpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 14, "Welding")
	pdf.AddPage()
	pdf.Cell(0, 14, "Fabrication")
	require.NoError(t, pdf.OutputFileAndClose(path))

	doc, err := document.NewLoader(nil).LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.SourceID)
	assert.Equal(t, "2", doc.Metadata["pages"])
	assert.Contains(t, doc.Text, "Welding")
	assert.Contains(t, doc.Text, "Fabrication")
	assert.Contains(t, doc.Text, document.PageSeparator)
}

func TestSupported(t *testing.T) {
	assert.True(t, document.Supported("a/B.PDF"))
	assert.True(t, document.Supported("notes.md"))
	assert.False(t, document.Supported("codes.xlsx"))
	assert.False(t, document.Supported("README"))
}
