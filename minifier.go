package evmvc

import (
	"bytes"
	"errors"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	minify "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

// Minifier minifies response/asset content by MIME type before it is
// written to the wire, per §4.5/PART C. Grounded on the teacher's
// minifier (minifier.go), ported from tdewolff/minify v1 to v2 (the
// module path the rest of the ecosystem has settled on) and exported for
// direct use from Response.Write and Coffer.Asset.
type Minifier struct {
	m *minify.M
}

// NewMinifier returns an empty Minifier; sub-minifiers are registered
// lazily on first use per MIME type, mirroring the teacher's lazy
// minify.ErrNotExist-triggered registration.
func NewMinifier() *Minifier {
	return &Minifier{m: minify.New()}
}

// Minify minifies b according to mimeType (a "type/subtype" or
// "type/subtype; charset=..." string — any parameters are ignored).
func (mf *Minifier) Minify(mimeType string, b []byte) ([]byte, error) {
	if ss := strings.Split(mimeType, ";"); len(ss) > 1 {
		mimeType = strings.TrimSpace(ss[0])
	}

	buf := &bytes.Buffer{}
	err := mf.m.Minify(mimeType, buf, bytes.NewReader(b))
	if err == nil {
		return buf.Bytes(), nil
	}
	if !errors.Is(err, minify.ErrNotExist) {
		return nil, err
	}

	switch mimeType {
	case "text/html":
		mf.m.Add(mimeType, html.Minify)
	case "text/css":
		mf.m.Add(mimeType, css.Minify)
	case "text/javascript", "application/javascript":
		mf.m.Add(mimeType, js.Minify)
	case "application/json":
		mf.m.Add(mimeType, json.Minify)
	case "text/xml":
		mf.m.Add(mimeType, xml.Minify)
	case "image/svg+xml":
		mf.m.Add(mimeType, svg.Minify)
	case "image/jpeg":
		mf.m.AddFunc(mimeType, func(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
			img, err := jpeg.Decode(r)
			if err != nil {
				return err
			}
			return jpeg.Encode(w, img, nil)
		})
	case "image/png":
		mf.m.AddFunc(mimeType, func(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
			img, err := png.Decode(r)
			if err != nil {
				return err
			}
			return (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(w, img)
		})
	default:
		return nil, errors.New("evmvc: unsupported minifier mime type " + mimeType)
	}

	return mf.Minify(mimeType, b)
}
