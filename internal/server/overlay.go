package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/frontbuild/internal/errors"
)

const overlayStyle = `position:fixed;inset:0;z-index:2147483647;overflow:auto;` +
	`background:rgba(20,20,20,.92);color:#f8f8f2;font:13px/1.5 ui-monospace,Menlo,monospace;padding:24px`

// ErrorOverlay renders the collected diagnostics as a full page overlay.
func ErrorOverlay(diags []errors.Diagnostic) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div id="frontbuild-overlay" style="` + overlayStyle + `">`)
		fmt.Fprintf(&b, `<h2 style="color:#ff5555;margin:0 0 16px">%d build error(s)</h2>`, len(diags))
		b.WriteString(`<ol style="margin:0;padding-left:20px">`)
		for _, d := range diags {
			b.WriteString(`<li style="margin-bottom:16px">`)
			fmt.Fprintf(&b, `<strong>[%s]</strong> `, templ.EscapeString(d.Step))
			if d.File != "" {
				loc := d.File
				if d.Line > 0 {
					loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
				}
				fmt.Fprintf(&b, `<code style="color:#8be9fd">%s</code><br>`, templ.EscapeString(loc))
			}
			b.WriteString(templ.EscapeString(d.Message))
			if d.Detail != "" {
				fmt.Fprintf(&b, `<pre style="white-space:pre-wrap;color:#bbb">%s</pre>`, templ.EscapeString(d.Detail))
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ol>`)
		b.WriteString(`<button onclick="this.parentNode.remove()" style="position:absolute;top:16px;right:16px">close</button>`)
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func renderOverlay(ctx context.Context, diags []errors.Diagnostic) ([]byte, error) {
	var buf bytes.Buffer
	if err := ErrorOverlay(diags).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
