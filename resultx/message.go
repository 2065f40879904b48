package resultx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartKind identifies which variant a MessagePart holds.
type PartKind int

const (
	PartText PartKind = iota
	PartList
	PartOpaque
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartList:
		return "list"
	case PartOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("PartKind(%d)", int(k))
	}
}

// MessagePart is an exception message as written by some producer: a flat
// string, an ordered list of nested parts, or any other JSON value kept
// verbatim.
//
// Decoding tries Text, then List, then Opaque.
type MessagePart struct {
	kind   PartKind
	text   string
	list   []MessagePart
	opaque json.RawMessage
}

func TextPart(s string) MessagePart {
	return MessagePart{kind: PartText, text: s}
}

func ListPart(parts ...MessagePart) MessagePart {
	if parts == nil {
		parts = []MessagePart{}
	}
	return MessagePart{kind: PartList, list: parts}
}

// OpaquePart wraps an arbitrary JSON value. Invalid JSON is rejected.
func OpaquePart(raw json.RawMessage) (MessagePart, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return MessagePart{}, fmt.Errorf("opaque message part: %w", err)
	}
	return MessagePart{kind: PartOpaque, opaque: buf.Bytes()}, nil
}

func (m MessagePart) Kind() PartKind { return m.kind }

// Text returns the string of a Text part.
func (m MessagePart) Text() (string, bool) {
	return m.text, m.kind == PartText
}

// List returns the children of a List part.
func (m MessagePart) List() ([]MessagePart, bool) {
	return m.list, m.kind == PartList
}

// Opaque returns the compacted JSON of an Opaque part.
func (m MessagePart) Opaque() (json.RawMessage, bool) {
	return m.opaque, m.kind == PartOpaque
}

// Depth is 1 for a leaf and one more than the deepest child for a list.
func (m MessagePart) Depth() int {
	if m.kind != PartList {
		return 1
	}
	deepest := 0
	for _, child := range m.list {
		if d := child.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

func (m MessagePart) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case PartText:
		return json.Marshal(m.text)
	case PartList:
		if m.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.list)
	case PartOpaque:
		if len(m.opaque) == 0 {
			return []byte("null"), nil
		}
		return m.opaque, nil
	default:
		return nil, fmt.Errorf("message part: unknown kind %v", m.kind)
	}
}

func (m *MessagePart) UnmarshalJSON(data []byte) error {
	// null decodes into a string without error; keep it opaque
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = MessagePart{kind: PartOpaque, opaque: json.RawMessage("null")}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = TextPart(text)
		return nil
	}
	var list []MessagePart
	if err := json.Unmarshal(data, &list); err == nil && list != nil {
		*m = ListPart(list...)
		return nil
	}
	part, err := OpaquePart(data)
	if err != nil {
		return err
	}
	*m = part
	return nil
}

// Flatten renders the message on one line, list items separated by spaces.
func (m MessagePart) Flatten() string {
	switch m.kind {
	case PartText:
		return m.text
	case PartList:
		items := make([]string, 0, len(m.list))
		for _, child := range m.list {
			if s := child.Flatten(); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, " ")
	default:
		return string(m.opaque)
	}
}

// write renders the part one line per leaf; each list level indents its
// children by two more spaces.
func (m MessagePart) write(b *strings.Builder, indent int) {
	pad := strings.Repeat(" ", indent)
	switch m.kind {
	case PartText:
		fmt.Fprintf(b, "%s%s\n", pad, m.text)
	case PartList:
		for _, child := range m.list {
			child.write(b, indent+2)
		}
	default:
		fmt.Fprintf(b, "%s%s\n", pad, m.opaque)
	}
}
