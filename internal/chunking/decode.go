package chunking

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
)

var ErrUndecodable = errors.New("text is not valid in any supported encoding")

type textEncoding struct {
	name string
	enc  encoding.Encoding
}

// decodeOrder is tried in sequence and the first clean decode wins. The
// x/text EUC-KR codec also covers the CP949 extension.
var decodeOrder = []textEncoding{
	{name: "euc-kr", enc: korean.EUCKR},
	{name: "latin-1", enc: charmap.ISO8859_1},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns raw as UTF-8 text along with the name of the encoding that
// decoded it cleanly.
func DecodeText(raw []byte) (string, string, error) {
	if utf8.Valid(raw) {
		return string(bytes.TrimPrefix(raw, utf8BOM)), "utf-8", nil
	}
	for _, te := range decodeOrder {
		out, err := te.enc.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		if !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
			continue
		}
		return string(out), te.name, nil
	}
	return "", "", ErrUndecodable
}
