// Package htmlpatch locates an <img> element in HTML content by its src attribute and
// rewrites one attribute of that element in place.
//
// Patching works on the raw bytes of the located start tag, so everything outside the
// rewritten attribute is preserved exactly, including quoting style, whitespace and
// markup a full parse-and-render cycle would normalize.
package htmlpatch

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	xhtml "golang.org/x/net/html"
)

var (
	// ErrNotFound is returned when no <img> carries the requested src.
	ErrNotFound = errors.New("htmlpatch: no <img> element with a matching src")
	// ErrVerification is returned when the patched content does not re-parse as expected.
	ErrVerification = errors.New("htmlpatch: patched content failed verification")
)

// Element is a located start tag
type Element struct {
	// Start and End are byte offsets of the start tag within the content.
	Start int
	End   int
	// Tag is the raw start tag, content[Start:End].
	Tag string
	Src string
}

// FindImage returns the first <img> start tag in document order whose src attribute
// equals src exactly. No URL normalization is applied.
func FindImage(content, src string) (*Element, error) {
	z := xhtml.NewTokenizer(strings.NewReader(content))
	offset := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if err := z.Err(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("htmlpatch: tokenize: %w", err)
			}
			return nil, ErrNotFound
		}

		// Copy before TagName/TagAttr, which lower-case the buffer in place
		raw := string(z.Raw())
		start := offset
		offset += len(raw)

		if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "img" || !hasAttr {
			continue
		}

		for {
			key, val, more := z.TagAttr()
			if string(key) == "src" {
				if string(val) == src {
					return &Element{Start: start, End: offset, Tag: raw, Src: src}, nil
				}
				// Only the first src counts
				break
			}
			if !more {
				break
			}
		}
	}
}

// SetAttribute sets attribute name on el to value and returns the new content.
// An existing attribute keeps its position and quote character; a missing one is
// appended after the last attribute. The value is HTML-escaped.
func SetAttribute(content string, el *Element, name, value string) (string, error) {
	if el == nil || el.Start < 0 || el.End > len(content) || el.Start >= el.End || content[el.Start:el.End] != el.Tag {
		return "", fmt.Errorf("htmlpatch: element does not belong to content")
	}

	tag, err := setTagAttribute(el.Tag, strings.ToLower(name), html.EscapeString(value))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len(content) - len(el.Tag) + len(tag))
	sb.WriteString(content[:el.Start])
	sb.WriteString(tag)
	sb.WriteString(content[el.End:])
	return sb.String(), nil
}

// PatchImageAlt sets the alt attribute of the first <img> whose src equals src and
// verifies the result. On any error the caller's content is left as it was.
func PatchImageAlt(content, src, alt string) (string, error) {
	el, err := FindImage(content, src)
	if err != nil {
		return "", err
	}
	patched, err := SetAttribute(content, el, "alt", alt)
	if err != nil {
		return "", err
	}
	if err := Verify(content, patched, src, alt); err != nil {
		return "", err
	}
	return patched, nil
}

func setTagAttribute(tag, name, escaped string) (string, error) {
	attrs, nameEnd, ok := scanTag(tag)
	if !ok {
		return "", fmt.Errorf("htmlpatch: not a start tag: %q", tag)
	}

	for _, a := range attrs {
		if a.name != name {
			continue
		}
		switch {
		case a.valStart < 0:
			// Bare attribute, e.g. <img alt src=...>
			return tag[:a.nameStart] + name + `="` + escaped + `"` + tag[a.end:], nil
		case a.quote == 0:
			return tag[:a.valStart] + `"` + escaped + `"` + tag[a.valEnd:], nil
		default:
			return tag[:a.valStart] + escaped + tag[a.valEnd:], nil
		}
	}

	insertAt := nameEnd
	if len(attrs) > 0 {
		insertAt = attrs[len(attrs)-1].end
	}
	return tag[:insertAt] + ` ` + name + `="` + escaped + `"` + tag[insertAt:], nil
}

// attrSpan records where one attribute sits inside a raw start tag
type attrSpan struct {
	name      string
	nameStart int
	// valStart and valEnd delimit the value without quotes; -1 when there is no value.
	valStart int
	valEnd   int
	quote    byte
	// end is the offset just past the attribute, including a closing quote.
	end int
}

// scanTag splits a raw start tag into attribute spans, following the tokenizer's
// attribute rules. It returns the offset just past the tag name.
func scanTag(tag string) ([]attrSpan, int, bool) {
	n := len(tag)
	if n < 2 || tag[0] != '<' {
		return nil, 0, false
	}

	i := 1
	for i < n && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	nameEnd := i
	if nameEnd == 1 {
		return nil, 0, false
	}

	var attrs []attrSpan
	for i < n {
		for i < n && (isSpace(tag[i]) || (tag[i] == '/' && (i+1 >= n || tag[i+1] != '>'))) {
			i++
		}
		if i >= n || tag[i] == '>' || tag[i] == '/' {
			break
		}

		a := attrSpan{nameStart: i, valStart: -1, valEnd: -1}
		// A leading '=' belongs to the name
		i++
		for i < n && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' && tag[i] != '=' {
			i++
		}
		a.name = strings.ToLower(tag[a.nameStart:i])
		a.end = i

		j := i
		for j < n && isSpace(tag[j]) {
			j++
		}
		if j < n && tag[j] == '=' {
			j++
			for j < n && isSpace(tag[j]) {
				j++
			}
			switch {
			case j < n && (tag[j] == '"' || tag[j] == '\''):
				a.quote = tag[j]
				a.valStart = j + 1
				closing := strings.IndexByte(tag[a.valStart:], a.quote)
				if closing < 0 {
					return nil, 0, false
				}
				a.valEnd = a.valStart + closing
				i = a.valEnd + 1
			default:
				a.valStart = j
				for j < n && !isSpace(tag[j]) && tag[j] != '>' {
					j++
				}
				a.valEnd = j
				i = j
			}
			a.end = i
		}
		attrs = append(attrs, a)
	}
	return attrs, nameEnd, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\f' || c == '\r'
}
