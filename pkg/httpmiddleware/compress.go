package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// Compress brotli-encodes response bodies for clients that accept "br".
// level follows brotli levels 0-11; out of range values select
// brotli.DefaultCompression.
func Compress(level int) Middleware {
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		level = brotli.DefaultCompression
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if !acceptsBrotli(r.Header.Get("Accept-Encoding")) || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			bw := &brotliWriter{ResponseWriter: w, level: level}
			defer bw.Close()
			next.ServeHTTP(bw, r)
		})
	}
}

func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(coding) != "br" {
			continue
		}
		params = strings.ReplaceAll(params, " ", "")
		return params != "q=0" && params != "q=0.0"
	}
	return false
}

// brotliWriter creates the encoder on the first body write.
type brotliWriter struct {
	http.ResponseWriter
	level int

	enc         *brotli.Writer
	wroteHeader bool
	passthrough bool
}

func (w *brotliWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.ResponseWriter.Header()
	if code < http.StatusOK || code == http.StatusNoContent || code == http.StatusNotModified ||
		h.Get("Content-Encoding") != "" {
		w.passthrough = true
	} else {
		h.Set("Content-Encoding", "br")
		h.Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.passthrough {
		return w.ResponseWriter.Write(b)
	}
	if w.enc == nil {
		w.enc = brotli.NewWriterLevel(w.ResponseWriter, w.level)
	}
	return w.enc.Write(b)
}

// Flush pushes buffered compressed data to the client.
func (w *brotliWriter) Flush() {
	if w.enc != nil {
		_ = w.enc.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *brotliWriter) Close() {
	if !w.wroteHeader || w.passthrough {
		return
	}
	// A br-encoded response without body still needs a valid empty stream.
	if w.enc == nil {
		w.enc = brotli.NewWriterLevel(w.ResponseWriter, w.level)
	}
	_ = w.enc.Close()
}

func (w *brotliWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
