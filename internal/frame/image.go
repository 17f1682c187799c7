package frame

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

const (
	imageWidth  = 1146
	imageHeight = 600
	imagePad    = 32
	lineGap     = 4
)

// Align controls the horizontal placement of text lines.
type Align int

const (
	AlignCenter Align = iota
	AlignLeft
)

// View is the declarative content of a frame image: an optional heading
// followed by lines of body text, stacked and centered vertically.
type View struct {
	Heading     string
	HeadingSize int
	Lines       []string
	LineSize    int
	Align       Align
}

// Centered builds the usual heading plus subtitle view.
func Centered(heading string, headingSize int, lines ...string) View {
	return View{Heading: heading, HeadingSize: headingSize, Lines: lines, LineSize: 18}
}

type textRow struct {
	text string
	size int
	bold bool
}

func (v View) rows() []textRow {
	var rows []textRow
	if v.Heading != "" {
		size := v.HeadingSize
		if size <= 0 {
			size = 48
		}
		rows = append(rows, textRow{v.Heading, size, true})
	}
	size := v.LineSize
	if size <= 0 {
		size = 18
	}
	for _, l := range v.Lines {
		if l == "" {
			continue
		}
		rows = append(rows, textRow{l, size, false})
	}
	return rows
}

// SVG renders the view as a 1.91:1 image.
func (v View) SVG() string {
	rows := v.rows()
	total := 0
	for i, r := range rows {
		total += r.size
		if i > 0 {
			total += lineGap * 4
		}
	}

	x, anchor := imageWidth/2, "middle"
	if v.Align == AlignLeft {
		x, anchor = imagePad*2, "start"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, imageWidth, imageHeight, imageWidth, imageHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="white" stroke="#1e1e1e" stroke-width="2"/>`,
		imagePad/2, imagePad/2, imageWidth-imagePad, imageHeight-imagePad)

	y := (imageHeight - total) / 2
	for i, r := range rows {
		if i > 0 {
			y += lineGap * 4
		}
		y += r.size
		weight, fill := "normal", "#1e1e1e"
		if r.bold {
			weight, fill = "bold", "#ff5a1f"
		}
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="sans-serif" font-size="%d" font-weight="%s" fill="%s" text-anchor="%s">%s</text>`,
			x, y, r.size, weight, fill, anchor, html.EscapeString(r.text))
	}
	b.WriteString(`</svg>`)
	return b.String()
}

// DataURI returns the image as a base64 SVG data URI.
func (v View) DataURI() string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(v.SVG()))
}
