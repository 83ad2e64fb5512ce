package document

import (
	"bytes"
	"fmt"
	"io"

	"idcard/internal/render"
)

// PageInfo describes one page of a rendered document.
type PageInfo struct {
	// Card is the index of the input card the page was rendered from.
	Card         int              `json:"card"`
	Width        float64          `json:"width"`
	Height       float64          `json:"height"`
	Placeholders int              `json:"placeholders"`
	Warnings     []render.Warning `json:"warnings,omitempty"`
}

// Document is a finished PDF with one page per rendered card copy.
type Document struct {
	data  []byte
	pages []PageInfo
}

// Bytes returns the PDF.
func (d *Document) Bytes() []byte {
	return d.data
}

// WriteTo writes the PDF to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.data)
	return int64(n), err
}

// Pages lists page metadata in output order.
func (d *Document) Pages() []PageInfo {
	return d.pages
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Warnings flattens the warnings of every distinct card, in input order.
func (d *Document) Warnings() []render.Warning {
	var out []render.Warning
	last := -1
	for _, p := range d.pages {
		if p.Card == last {
			continue
		}
		last = p.Card
		out = append(out, p.Warnings...)
	}
	return out
}

// emptyPDF returns a minimal valid PDF with an empty page tree.
func emptyPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
