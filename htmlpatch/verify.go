package htmlpatch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Verify re-parses both versions of the content and checks that the patch kept the
// number of <img> elements and changed the alt of exactly one image with src, to alt.
// Images are compared position by position in parse-tree order, which may differ from
// source order when the parser relocates misplaced markup.
func Verify(before, after, src, alt string) error {
	beforeDoc, err := goquery.NewDocumentFromReader(strings.NewReader(before))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	afterDoc, err := goquery.NewDocumentFromReader(strings.NewReader(after))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	if b, a := beforeDoc.Find("img").Length(), afterDoc.Find("img").Length(); b != a {
		return fmt.Errorf("%w: image count changed from %d to %d", ErrVerification, b, a)
	}

	was, now := altsOf(beforeDoc, src), altsOf(afterDoc, src)
	if len(now) == 0 {
		return fmt.Errorf("%w: image with src %q disappeared", ErrVerification, src)
	}
	if len(was) != len(now) {
		return fmt.Errorf("%w: images with src %q changed from %d to %d", ErrVerification, src, len(was), len(now))
	}

	changed, carries := 0, false
	for i := range now {
		if now[i] == alt {
			carries = true
		}
		if now[i] == was[i] {
			continue
		}
		changed++
		if now[i] != alt {
			return fmt.Errorf("%w: expected alt %q, got %q", ErrVerification, alt, now[i])
		}
	}
	if changed > 1 {
		return fmt.Errorf("%w: %d images with src %q changed", ErrVerification, changed, src)
	}
	if !carries {
		return fmt.Errorf("%w: no image with src %q carries alt %q", ErrVerification, src, alt)
	}
	return nil
}

// altsOf lists the alt values of images with src in tree order; a missing alt is "\x00"
func altsOf(doc *goquery.Document, src string) []string {
	var alts []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("src"); !ok || v != src {
			return
		}
		v, ok := s.Attr("alt")
		if !ok {
			v = "\x00"
		}
		alts = append(alts, v)
	})
	return alts
}
