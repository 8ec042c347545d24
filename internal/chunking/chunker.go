package chunking

import (
	"log"
	"path/filepath"
	"strings"

	"ragdocs/internal/models"
	"ragdocs/internal/util"
)

// Chunker turns raw uploaded bytes into document chunks.
type Chunker struct {
	Size    int
	Overlap int
}

func New(size, overlap int) *Chunker {
	return &Chunker{Size: size, Overlap: overlap}
}

// SupportedExtension reports whether BuildChunks knows how to read files
// with the given name.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// BuildChunks dispatches on the file extension. Unreadable or unsupported
// input yields no chunks rather than an error so one bad file never fails a
// batch; the reason is logged.
func (c *Chunker) BuildChunks(documentID, filename string, raw []byte) []models.DocumentChunk {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		pages, err := ExtractPDFPages(raw)
		if err != nil {
			log.Printf("chunking: pdf extraction failed document_id=%s filename=%q err=%v", documentID, filename, err)
			return nil
		}
		return c.ChunkPages(documentID, filename, pages)
	case ".txt", ".md":
		text, enc, err := DecodeText(raw)
		if err != nil {
			log.Printf("chunking: decode failed document_id=%s filename=%q err=%v", documentID, filename, err)
			return nil
		}
		if enc != "utf-8" {
			log.Printf("chunking: decoded document_id=%s filename=%q encoding=%s", documentID, filename, enc)
		}
		return c.appendChunks(nil, documentID, filename, nil, util.SanitizeText(text))
	default:
		log.Printf("chunking: unsupported extension document_id=%s filename=%q ext=%q", documentID, filename, ext)
		return nil
	}
}

// ChunkPages splits each page separately. Index restarts at 0 on every page.
func (c *Chunker) ChunkPages(documentID, filename string, pages []Page) []models.DocumentChunk {
	out := make([]models.DocumentChunk, 0, len(pages))
	for _, p := range pages {
		out = c.appendChunks(out, documentID, filename, models.IntPtr(p.Number), p.Text)
	}
	return out
}

func (c *Chunker) appendChunks(out []models.DocumentChunk, documentID, source string, page *int, text string) []models.DocumentChunk {
	for idx, part := range Split(text, c.Size, c.Overlap) {
		chunk, err := models.NewDocumentChunk(part, source, documentID, page, idx)
		if err != nil {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
