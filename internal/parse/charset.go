package parse

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeCharset converts raw bytes in the declared charset to UTF-8 text.
// An empty charset or any UTF-8 label passes the bytes through, minus a
// leading byte order mark.
func DecodeCharset(raw []byte, charset string) (string, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "utf8" {
		raw = bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(raw) {
			return strings.ToValidUTF8(string(raw), "�"), nil
		}
		return string(raw), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", eris.Wrapf(err, "charset: unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", eris.Wrapf(err, "charset: decode %s", charset)
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}
