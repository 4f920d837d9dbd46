package staticfile

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/polymedia/ember/http1"
)

var extensionTypes = map[string]string{
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".pdf":   "application/pdf",
	".css":   "text/css",
	".js":    "text/javascript",
	".svg":   "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "application/x-font-ttf",
	".eot":   "application/vnd.ms-fontobject",
	".otf":   "application/font-otf",
	".json":  "application/json",
	".xml":   "text/xml",
	".exe":   "application/exe",
}

// setContentType sets the Content-Type response header by file extension,
// matching StaticFileController::setContentType. Extensions with a text
// encoding (.txt, .html, .htm) get a charset parameter; unrecognized
// extensions are left without a Content-Type header.
func setContentType(filename, encoding string, resp *http1.ResponseWriter) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".txt"):
		resp.SetHeader("Content-Type", "text/plain; charset="+encoding)
		return
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		resp.SetHeader("Content-Type", "text/html; charset="+encoding)
		return
	}
	for ext, ctype := range extensionTypes {
		if strings.HasSuffix(lower, ext) {
			resp.SetHeader("Content-Type", ctype)
			return
		}
	}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
