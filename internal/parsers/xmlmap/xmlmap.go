// Package xmlmap parses the chains' XML feeds into generic nested maps and
// provides the tolerant navigation the dialects require: element names vary
// in spelling and case between chains and between feed generations, so
// lookups accept ordered candidate names and fall back case-insensitively.
package xmlmap

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/zolsal/price-service/internal/parsers/charset"
)

// attributePrefix marks XML attributes in the decoded map.
const attributePrefix = "@_"

// Node is one decoded XML element: child elements keyed by name (repeated
// children collapse into []any), attributes under "@_name", text under "#text".
type Node = map[string]any

var encodingDeclRe = regexp.MustCompile(`<\?xml[^?]*encoding=["']([^"']+)["'][^?]*\?>`)

// Parse decodes feed bytes (handling BOMs and declared encodings) and walks
// the XML into a Node tree rooted at the document element.
func Parse(content []byte) (Node, error) {
	decoded, err := decodeContent(content)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	decoder := xml.NewDecoder(strings.NewReader(decoded))
	decoder.CharsetReader = func(cs string, input io.Reader) (io.Reader, error) {
		return input, nil // encoding already handled
	}

	return decodeElement(decoder, nil)
}

// decodeContent converts raw feed bytes to a UTF-8 string, preferring the
// encoding declared in the XML prolog over byte-level detection.
func decodeContent(content []byte) (string, error) {
	enc := detectDeclaredEncoding(content)
	if enc == "" {
		enc = charset.DetectEncoding(content)
	}
	return charset.Decode(content, enc)
}

func detectDeclaredEncoding(content []byte) charset.Encoding {
	head := content
	if len(head) > 200 {
		head = head[:200]
	}
	match := encodingDeclRe.FindSubmatch(head)
	if len(match) < 2 {
		return ""
	}
	switch strings.ToLower(string(match[1])) {
	case "utf-8":
		return charset.EncodingUTF8
	case "utf-16", "utf-16le":
		return charset.EncodingUTF16LE
	case "utf-16be":
		return charset.EncodingUTF16BE
	case "windows-1255", "cp1255", "iso-8859-8":
		return charset.EncodingWindows1255
	default:
		return ""
	}
}

// decodeElement recursively decodes one element and its subtree.
func decodeElement(decoder *xml.Decoder, start *xml.StartElement) (Node, error) {
	result := make(Node)

	if start != nil {
		for _, attr := range start.Attr {
			result[attributePrefix+attr.Name.Local] = attr.Value
		}
	}

	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			child, err := decodeElement(decoder, &t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if existing, ok := result[name]; ok {
				switch v := existing.(type) {
				case []any:
					result[name] = append(v, child)
				default:
					result[name] = []any{v, child}
				}
			} else {
				result[name] = child
			}

		case xml.CharData:
			if trimmed := strings.TrimSpace(string(t)); trimmed != "" {
				text.WriteString(trimmed)
			}

		case xml.EndElement:
			if s := text.String(); s != "" {
				result["#text"] = s
			}
			return result, nil
		}
	}

	if s := text.String(); s != "" {
		result["#text"] = s
	}
	return result, nil
}

// FindAll returns the first non-empty set of descendant elements matching one
// of the candidate names, tried in order. The search covers the whole subtree
// so `//Product`-style lookups work regardless of where the container sits.
func FindAll(node Node, names ...string) []Node {
	for _, name := range names {
		var found []Node
		collectDescendants(node, name, &found)
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func collectDescendants(node Node, name string, out *[]Node) {
	for key, value := range node {
		if strings.HasPrefix(key, attributePrefix) || key == "#text" {
			continue
		}
		matched := key == name
		switch v := value.(type) {
		case Node:
			if matched {
				*out = append(*out, v)
			}
			collectDescendants(v, name, out)
		case []any:
			for _, item := range v {
				child, ok := item.(Node)
				if !ok {
					continue
				}
				if matched {
					*out = append(*out, child)
				}
				collectDescendants(child, name, out)
			}
		}
	}
}

// Path navigates a dot-separated element path from node, tolerating case
// differences per segment, and returns the elements at the final segment.
func Path(node Node, path string) []Node {
	parts := strings.Split(path, ".")
	current := node
	for i, part := range parts {
		value, ok := lookup(current, part)
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return toNodeSlice(value)
		}
		next, ok := value.(Node)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// lookup finds a child by name, exact match first, then case-insensitive.
func lookup(node Node, name string) (any, bool) {
	if v, ok := node[name]; ok {
		return v, true
	}
	for k, v := range node {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func toNodeSlice(value any) []Node {
	switch v := value.(type) {
	case []any:
		out := make([]Node, 0, len(v))
		for _, item := range v {
			if n, ok := item.(Node); ok {
				out = append(out, n)
			}
		}
		return out
	case Node:
		return []Node{v}
	default:
		return nil
	}
}

// ChildString returns the text of the first present candidate child, in
// candidate order. Empty strings count as absent.
func ChildString(node Node, names ...string) string {
	for _, name := range names {
		value, ok := lookup(node, name)
		if !ok {
			continue
		}
		if s := valueToString(value); s != "" {
			return s
		}
	}
	return ""
}

// FindString searches the subtree breadth-first for the first candidate
// element carrying text, so document-level fields resolve from the root
// downward. Used for the price files' root-level store identifier.
func FindString(node Node, names ...string) string {
	queue := []Node{node}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if s := ChildString(current, names...); s != "" {
			return s
		}

		for key, value := range current {
			if strings.HasPrefix(key, attributePrefix) || key == "#text" {
				continue
			}
			switch v := value.(type) {
			case Node:
				queue = append(queue, v)
			case []any:
				for _, item := range v {
					if n, ok := item.(Node); ok {
						queue = append(queue, n)
					}
				}
			}
		}
	}
	return ""
}

// valueToString renders a decoded value as trimmed text. Element nodes
// resolve through their "#text" entry.
func valueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case Node:
		if text, ok := v["#text"]; ok {
			return valueToString(text)
		}
		return ""
	case []any:
		if len(v) > 0 {
			return valueToString(v[0])
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

var currencySuffixRe = regexp.MustCompile(`\s*(NIS|ILS|שח|ש"ח)\s*$`)

// ParseAgorot parses a price string into integer agorot. The feeds emit plain
// decimals ("5.90"), but currency markers and thousands separators appear in
// older exports. Returns an error for non-numeric input; callers decide what
// a non-positive value means.
func ParseAgorot(value string) (int, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.Map(func(r rune) rune {
		if r == '₪' || r == ' ' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = currencySuffixRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return 0, fmt.Errorf("empty price value")
	}

	// Treat the rightmost separator as the decimal point: "1,234.56" drops
	// its thousands commas, while the legacy "5,90" form reads the comma as
	// the decimal.
	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	if lastComma > lastDot {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else if lastDot > lastComma {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	var result float64
	if _, err := fmt.Sscanf(cleaned, "%f", &result); err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", value, err)
	}

	return int(math.Round(result * 100)), nil
}
