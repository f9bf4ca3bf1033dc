// Package logger provides log output helpers, including a writer that masks
// device-tracking tokens.
package logger

import (
	"io"
	"regexp"
)

var redactPatterns = []struct {
	re          *regexp.Regexp
	replacement []byte
}{
	// Device identity cookies carry a per-user tracking token. Raw Cookie
	// headers must never land in log output verbatim.
	{regexp.MustCompile(`brp-device-identifier=[0-9A-Fa-f]+`), []byte("brp-device-identifier=[REDACTED]")},
	// Bearer tokens in Authorization headers or log fields.
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), []byte("bearer [REDACTED]")},
}

type RedactWriter struct{ w io.Writer }

func NewRedactWriter(w io.Writer) *RedactWriter { return &RedactWriter{w: w} }

func (r *RedactWriter) Write(p []byte) (int, error) {
	out := p
	for _, pat := range redactPatterns {
		out = pat.re.ReplaceAllLiteral(out, pat.replacement)
	}
	_, err := r.w.Write(out)
	return len(p), err
}
