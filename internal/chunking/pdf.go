package chunking

import (
	"bytes"
	"fmt"

	"ragdocs/internal/util"

	"github.com/ledongthuc/pdf"
)

type Page struct {
	Number int
	Text   string
}

// ExtractPDFPages returns the plain text of every page, numbered from 1.
// Pages without a content stream are skipped.
func ExtractPDFPages(raw []byte) (pages []Page, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: util.SanitizeText(text)})
	}
	return pages, nil
}
