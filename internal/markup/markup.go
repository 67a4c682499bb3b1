// Package markup rewrites script tags and injects snippets into HTML
// documents. Tokens that are not rewritten are emitted exactly as they
// appeared in the input, so formatting, comments and SSI directives survive.
package markup

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ModuleToDefer replaces type="module" on every script tag with a defer
// attribute. The bundled output is a classic script, so it must not be
// loaded as a module. It reports whether anything changed.
func ModuleToDefer(src []byte) ([]byte, bool) {
	return rewriteScripts(src, func(attrs []html.Attribute) ([]html.Attribute, bool) {
		idx := attrIndex(attrs, "type")
		if idx < 0 || !strings.EqualFold(strings.TrimSpace(attrs[idx].Val), "module") {
			return attrs, false
		}

		out := make([]html.Attribute, 0, len(attrs))
		hasDefer := attrIndex(attrs, "defer") >= 0
		for i, a := range attrs {
			if i == idx {
				if !hasDefer {
					out = append(out, html.Attribute{Key: "defer"})
				}
				continue
			}
			out = append(out, a)
		}
		return out, true
	})
}

// ToModule marks every JavaScript script tag as type="module" and drops the
// defer attribute, which modules imply. Script tags carrying data types such
// as application/ld+json are left alone.
func ToModule(src []byte) ([]byte, bool) {
	return rewriteScripts(src, func(attrs []html.Attribute) ([]html.Attribute, bool) {
		idx := attrIndex(attrs, "type")
		if idx >= 0 {
			typ := strings.ToLower(strings.TrimSpace(attrs[idx].Val))
			if typ == "module" || !isJavaScriptType(typ) {
				return attrs, false
			}
		}

		out := make([]html.Attribute, 0, len(attrs)+1)
		if idx < 0 {
			out = append(out, html.Attribute{Key: "type", Val: "module"})
		}
		for i, a := range attrs {
			switch {
			case i == idx:
				out = append(out, html.Attribute{Key: "type", Val: "module"})
			case a.Key == "defer":
			default:
				out = append(out, a)
			}
		}
		return out, true
	})
}

// InjectBeforeBodyEnd inserts snippet before the last </body> tag, or appends
// it when the document has none.
func InjectBeforeBodyEnd(src, snippet []byte) []byte {
	pos := -1
	offset := 0

	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				pos = offset
			}
		}
		offset += len(raw)
	}

	out := make([]byte, 0, len(src)+len(snippet))
	if pos < 0 {
		out = append(out, src...)
		return append(out, snippet...)
	}
	out = append(out, src[:pos]...)
	out = append(out, snippet...)
	return append(out, src[pos:]...)
}

type attrRewrite func(attrs []html.Attribute) ([]html.Attribute, bool)

func rewriteScripts(src []byte, rewrite attrRewrite) ([]byte, bool) {
	var buf bytes.Buffer
	buf.Grow(len(src))
	changed := false

	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return src, false
			}
			break
		}

		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			buf.Write(raw)
			continue
		}

		// Token lowercases names inside the tokenizer buffer.
		raw = append([]byte(nil), raw...)
		tok := z.Token()
		if tok.DataAtom != atom.Script {
			buf.Write(raw)
			continue
		}

		attrs, ok := rewrite(tok.Attr)
		if !ok {
			buf.Write(raw)
			continue
		}

		changed = true
		writeTag(&buf, tok.Data, attrs, tt == html.SelfClosingTagToken)
	}

	if !changed {
		return src, false
	}
	return buf.Bytes(), true
}

func writeTag(buf *bytes.Buffer, name string, attrs []html.Attribute, selfClosing bool) {
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, a := range attrs {
		buf.WriteByte(' ')
		if a.Namespace != "" {
			buf.WriteString(a.Namespace)
			buf.WriteByte(':')
		}
		buf.WriteString(a.Key)
		if a.Val == "" {
			continue
		}
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(a.Val))
		buf.WriteByte('"')
	}
	if selfClosing {
		buf.WriteString(" /")
	}
	buf.WriteByte('>')
}

func attrIndex(attrs []html.Attribute, key string) int {
	for i, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return i
		}
	}
	return -1
}

func isJavaScriptType(typ string) bool {
	switch typ {
	case "", "text/javascript", "application/javascript", "text/ecmascript",
		"application/ecmascript", "application/x-javascript":
		return true
	}
	return false
}
