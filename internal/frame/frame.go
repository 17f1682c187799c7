// Package frame renders Farcaster frames and parses the actions posted back.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
)

// MaxButtons is the number of buttons a frame may carry.
const MaxButtons = 4

// ErrTooManyButtons is returned by Render for frames with more than MaxButtons.
var ErrTooManyButtons = errors.New("frame supports at most 4 buttons")

// ButtonKind selects what a client does when a button is pressed.
type ButtonKind int

const (
	// ButtonPost posts the action back to Path.
	ButtonPost ButtonKind = iota
	// ButtonLink opens URL in the client's browser.
	ButtonLink
	// ButtonReset returns to the entry frame.
	ButtonReset
)

// Button is one frame intent.
type Button struct {
	Label string
	Kind  ButtonKind
	// Path is relative to the frame base path. Post buttons only.
	Path string
	// Value travels back signed in the target URL. Post buttons only.
	Value string
	// URL is the destination of a link button.
	URL string
}

// Post returns a button posting to path with value.
func Post(label, path, value string) Button {
	return Button{Label: label, Kind: ButtonPost, Path: path, Value: value}
}

// Link returns a button opening target.
func Link(label, target string) Button {
	return Button{Label: label, Kind: ButtonLink, URL: target}
}

// Reset returns a button going back to the entry frame.
func Reset(label string) Button {
	return Button{Label: label, Kind: ButtonReset}
}

// Frame is one screen: a title, an image and up to four buttons.
type Frame struct {
	Title   string
	Image   View
	Buttons []Button
}

// Renderer turns frames into HTML documents.
type Renderer struct {
	base   string
	states *StateCodec
}

// NewRenderer builds a renderer whose post targets live under base, for
// example https://frame.example.com/api.
func NewRenderer(base string, states *StateCodec) *Renderer {
	return &Renderer{base: base, states: states}
}

type metaTag struct {
	Property string
	Content  string
}

var page = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Tags}}<meta property="{{.Property}}" content="{{.Content}}">
{{end}}</head>
<body><h1>{{.Title}}</h1></body>
</html>
`))

// Render returns the HTML document for f.
func (r *Renderer) Render(f Frame) ([]byte, error) {
	if len(f.Buttons) > MaxButtons {
		return nil, ErrTooManyButtons
	}
	image := f.Image.DataURI()
	tags := []metaTag{
		{"og:title", f.Title},
		{"og:image", image},
		{"fc:frame", "vNext"},
		{"fc:frame:image", image},
		{"fc:frame:image:aspect_ratio", "1.91:1"},
		{"fc:frame:post_url", r.target("/", "")},
	}
	for i, b := range f.Buttons {
		prefix := "fc:frame:button:" + strconv.Itoa(i+1)
		tags = append(tags, metaTag{prefix, b.Label})
		switch b.Kind {
		case ButtonLink:
			tags = append(tags, metaTag{prefix + ":action", "link"}, metaTag{prefix + ":target", b.URL})
		case ButtonReset:
			tags = append(tags, metaTag{prefix + ":action", "post"}, metaTag{prefix + ":target", r.target("/", "")})
		default:
			token := ""
			if b.Value != "" {
				var err error
				if token, err = r.states.Encode(b.Value); err != nil {
					return nil, fmt.Errorf("encode button %d state: %w", i+1, err)
				}
			}
			tags = append(tags, metaTag{prefix + ":action", "post"}, metaTag{prefix + ":target", r.target(b.Path, token)})
		}
	}

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title string
		Tags  []metaTag
	}{f.Title, tags})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) target(path, token string) string {
	if path == "/" {
		path = ""
	}
	t := r.base + path
	if token != "" {
		t += "?" + url.Values{StateParam: {token}}.Encode()
	}
	if t == "" {
		return "/"
	}
	return t
}
