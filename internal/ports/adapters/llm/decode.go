package llm

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// decoder pulls a list of strings out of a model reply, or fails so the
// next decoder is tried.
type decoder struct {
	name string
	fn   func(string) ([]string, error)
}

var decoders = []decoder{
	{name: "json", fn: decodeWhole},
	{name: "embedded-array", fn: decodeEmbedded},
	{name: "quoted", fn: decodeQuoted},
}

var (
	errEmptyReply = errors.New("llm: empty reply")
	errNotArray   = errors.New("llm: reply is not a string array")
	errNoStrings  = errors.New("llm: no strings in reply")

	arrayRE  = regexp.MustCompile(`\[\s*"[^"]*"(?:\s*,\s*"[^"]*")*\s*\]`)
	quotedRE = regexp.MustCompile(`"([^"]*)"`)
)

// decode runs the decoders in order and returns the first success with the
// decoder's name.
func decode(reply string) ([]string, string, error) {
	if strings.TrimSpace(reply) == "" {
		return nil, "", errEmptyReply
	}
	var errs []error
	for _, d := range decoders {
		out, err := d.fn(reply)
		if err == nil {
			return out, d.name, nil
		}
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

// decodeWhole parses the reply, stripped of code fences and chatter around
// the outermost brackets, as a JSON array of non-empty strings.
func decodeWhole(reply string) ([]string, error) {
	t := stripFences(reply)
	if i := strings.Index(t, "["); i > 0 {
		t = t[i:]
	}
	if j := strings.LastIndex(t, "]"); j >= 0 {
		t = t[:j+1]
	}
	return stringArray(t)
}

func decodeEmbedded(reply string) ([]string, error) {
	m := arrayRE.FindString(reply)
	if m == "" {
		return nil, errNotArray
	}
	return stringArray(m)
}

func decodeQuoted(reply string) ([]string, error) {
	var out []string
	for _, m := range quotedRE.FindAllStringSubmatch(reply, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errNoStrings
	}
	return out, nil
}

func stringArray(s string) ([]string, error) {
	if !gjson.Valid(s) {
		return nil, errNotArray
	}
	res := gjson.Parse(s)
	if !res.IsArray() {
		return nil, errNotArray
	}
	items := res.Array()
	if len(items) == 0 {
		return nil, errNoStrings
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Type != gjson.String || strings.TrimSpace(it.Str) == "" {
			return nil, errNotArray
		}
		out = append(out, it.Str)
	}
	return out, nil
}

func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	return t
}
