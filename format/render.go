package format

import (
	"errors"
	"fmt"
	"io"

	"github.com/luma/respkit/protocol"
)

// Style selects one of the renderings.
type Style string

const (
	StyleText Style = "text"
	StyleJSON Style = "json"
	StyleDump Style = "dump"
)

var ErrUnknownStyle = errors.New("Unknown output style")

// ParseStyle validates a style name given on the command line.
func ParseStyle(s string) (Style, error) {
	switch st := Style(s); st {
	case StyleText, StyleJSON, StyleDump:
		return st, nil
	default:
		return "", fmt.Errorf("Failed to parse '%s': %w", s, ErrUnknownStyle)
	}
}

// Write renders v in the given style to w, followed by a newline where the
// rendering does not end in one already.
func Write(w io.Writer, style Style, v protocol.Value) error {
	var out []byte

	switch style {
	case StyleJSON:
		b, err := JSON(v)
		if err != nil {
			return err
		}
		out = append(b, '\n')

	case StyleDump:
		out = []byte(Dump(v))

	case StyleText:
		out = []byte(Text(v))

	default:
		return fmt.Errorf("Failed to render with '%s': %w", style, ErrUnknownStyle)
	}

	_, err := w.Write(out)
	return err
}
