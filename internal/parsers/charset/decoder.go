package charset

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding represents a text encoding seen on the chain portals.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF16LE     Encoding = "utf-16le"
	EncodingUTF16BE     Encoding = "utf-16be"
	EncodingWindows1255 Encoding = "windows-1255"
)

// DetectEncoding inspects a byte buffer and guesses its encoding. The feeds
// are declared UTF-8, but the portals have historically served UTF-16 with a
// BOM and legacy Windows-1255 exports, so all three are recognized.
func DetectEncoding(data []byte) Encoding {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return EncodingUTF8
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		return EncodingUTF16LE
	}
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		return EncodingUTF16BE
	}
	if utf8.Valid(data) {
		return EncodingUTF8
	}
	// Not valid UTF-8 and no BOM: the only legacy single-byte encoding these
	// portals have produced is Windows-1255.
	return EncodingWindows1255
}

// Decode converts a byte buffer to a UTF-8 string. The UTF-8 BOM is stripped.
// Hebrew content passes through byte-exact in the UTF-8 case.
func Decode(data []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingUTF8, "":
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		if utf8.Valid(data) {
			return string(data), nil
		}
		// Declared UTF-8 but not valid: fall through to the legacy decoder
		// rather than emitting replacement runes.
		return decodeWith(data, charmap.Windows1255)
	case EncodingUTF16LE:
		return decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
	case EncodingUTF16BE:
		return decodeWith(data, unicode.UTF16(unicode.BigEndian, unicode.UseBOM))
	case EncodingWindows1255:
		if utf8.Valid(data) {
			// Mislabeled but already UTF-8; decoding again would mangle it.
			return string(data), nil
		}
		return decodeWith(data, charmap.Windows1255)
	default:
		return string(data), nil
	}
}

func decodeWith(data []byte, enc encoding.Encoding) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ToUTF8Reader wraps a reader with a decoder converting to UTF-8.
func ToUTF8Reader(r io.Reader, enc Encoding) (io.Reader, error) {
	switch enc {
	case EncodingUTF16LE:
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()), nil
	case EncodingUTF16BE:
		return transform.NewReader(r, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()), nil
	case EncodingWindows1255:
		return transform.NewReader(r, charmap.Windows1255.NewDecoder()), nil
	default:
		return r, nil
	}
}
