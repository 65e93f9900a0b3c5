package scrape_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"coursematch/src/scrape"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		title, want string
	}{
		{"Computer Programming", "Computer_Programming"},
		{"  Practical Nursing (PN)  ", "Practical_Nursing_PN"},
		{"Welding & Fabrication: Co-op", "Welding__Fabrication_Coop"},
		{"", "document"},
		{"!!!", "document"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"Éducation spécialisée", "Éducation_spécialisée"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scrape.FileName(tt.title), tt.title)
	}
}

func TestParse(t *testing.T) {
	html := `<html><head><title>t</title><style>.x{}</style></head><body>
<h1>Centennial</h1>
<h2> Computer Programming </h2>
<p>Program Code: 3119</p>
<script>var x = 1;</script>
<h2>Second</h2>
</body></html>`
	page, err := scrape.Parse(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Computer Programming", page.Title)
	assert.Contains(t, page.Lines, "Program Code: 3119")
	assert.Contains(t, page.Lines, "Computer Programming")
	for _, l := range page.Lines {
		assert.NotEqual(t, "", l)
		assert.NotContains(t, l, "var x")
	}
}

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "https://example.com/a"))
	require.NoError(t, f.SetCellValue(sheet, "A3", "  https://example.com/b  "))
	require.NoError(t, f.SetCellValue(sheet, "B4", "ignored"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	urls, err := scrape.ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)

	_, err = scrape.ReadURLs(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		switch r.URL.Path {
		case "/cp", "/cp-again":
			fmt.Fprint(w, "<h2>Computer Programming</h2><p>COMP 100</p>")
		case "/untitled":
			fmt.Fprint(w, "<p>no heading here</p>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "pdfs")
	var done atomic.Int32
	s := scrape.New(nil, scrape.Config{OutputDir: out, Concurrency: 2, Progress: func() { done.Add(1) }})
	urls := []string{srv.URL + "/cp", srv.URL + "/missing", srv.URL + "/cp-again", srv.URL + "/untitled"}

	report, err := s.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(out, "Computer_Programming.pdf"),
		filepath.Join(out, "Computer_Programming_2.pdf"),
		filepath.Join(out, "document.pdf"),
	}, report.Written)
	require.Len(t, report.Failed, 1)
	assert.ErrorContains(t, report.Failed[srv.URL+"/missing"], "404")
	assert.EqualValues(t, 4, done.Load())
	assert.Equal(t, scrape.UserAgent, agent.Load())

	for _, p := range report.Written {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "%PDF-"), p)
	}
}

func TestRenderPDF(t *testing.T) {
	data, err := scrape.RenderPDF([]string{"Café programming", strings.Repeat("long line ", 100)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
}
