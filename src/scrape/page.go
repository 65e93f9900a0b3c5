package scrape

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Page is the text of one program page.
type Page struct {
	Title string
	Lines []string
}

// Parse extracts the first <h2> as title and the page text as trimmed, non-empty lines.
func Parse(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,style,noscript").Remove()

	page := Page{Title: strings.TrimSpace(doc.Find("h2").First().Text())}
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			page.Lines = append(page.Lines, line)
		}
	}
	return page, nil
}

// RenderPDF lays lines out top to bottom on Letter pages in 10pt Helvetica.
func RenderPDF(lines []string) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(40, 52, 40)
	pdf.SetAutoPageBreak(true, 52)
	pdf.SetFont("Helvetica", "", 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	for _, line := range lines {
		pdf.MultiCell(0, 12, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadURLs returns the non-blank cells of the first column of the first sheet.
func ReadURLs(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var urls []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if u := strings.TrimSpace(row[0]); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
