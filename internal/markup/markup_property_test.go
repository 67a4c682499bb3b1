//go:build property

package markup

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genScriptTag() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("", ` type="module"`, ` type="text/javascript"`, ` type=module`),
		gen.Bool(),
		gen.Bool(),
		gen.Identifier(),
	).Map(func(vals []interface{}) string {
		var sb strings.Builder
		sb.WriteString("<script")
		if vals[1].(bool) {
			sb.WriteString(" defer")
		}
		sb.WriteString(vals[0].(string))
		if vals[2].(bool) {
			sb.WriteString(` src="` + vals[3].(string) + `.js"></script>`)
		} else {
			sb.WriteString(">" + vals[3].(string) + "()</script>")
		}
		return sb.String()
	})
}

func genDocument() gopter.Gen {
	return gen.SliceOf(genScriptTag()).Map(func(tags []string) string {
		var sb strings.Builder
		sb.WriteString("<!DOCTYPE html>\n<html><body>\n")
		for i, tag := range tags {
			fmt.Fprintf(&sb, "<p>para %d</p>\n%s\n", i, tag)
		}
		sb.WriteString("</body></html>\n")
		return sb.String()
	})
}

// TestScriptRewriteProperties validates the module/defer rewriting rules
func TestScriptRewriteProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("no module script survives ModuleToDefer", prop.ForAll(
		func(doc string) bool {
			out, _ := ModuleToDefer([]byte(doc))
			return !bytes.Contains(out, []byte(`type="module"`)) &&
				!bytes.Contains(out, []byte(`type=module`))
		},
		genDocument(),
	))

	properties.Property("every script is a module after ToModule", prop.ForAll(
		func(doc string) bool {
			out, _ := ToModule([]byte(doc))
			return bytes.Count(out, []byte("<script")) == countModuleTags(out)
		},
		genDocument(),
	))

	properties.Property("ToModule is idempotent", prop.ForAll(
		func(doc string) bool {
			once, _ := ToModule([]byte(doc))
			twice, changed := ToModule(once)
			return !changed && bytes.Equal(once, twice)
		},
		genDocument(),
	))

	properties.Property("unchanged documents are returned byte for byte", prop.ForAll(
		func(n int) bool {
			doc := []byte(fmt.Sprintf("<html>\n<!-- %d -->\n<body><p>x &lt; y</p></body></html>", n))
			out, changed := ModuleToDefer(doc)
			return !changed && bytes.Equal(out, doc)
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func countModuleTags(doc []byte) int {
	var count int
	for _, src := range bytes.Split(doc, []byte("<script"))[1:] {
		end := bytes.IndexByte(src, '>')
		if end < 0 {
			continue
		}
		attrs := src[:end]
		if bytes.Contains(attrs, []byte(`type="module"`)) || bytes.Contains(attrs, []byte(`type=module`)) {
			count++
		}
	}
	return count
}
