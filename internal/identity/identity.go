// Package identity derives the de-duplication key of a raw message:
// the verbatim value of its Message-ID header.
package identity

import (
	"bytes"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func init() {
	// Register charsets go-message does not know out of the box so that
	// messages from older servers still parse.
	charset.RegisterEncoding("ascii", unicode.UTF8)
	charset.RegisterEncoding("us-ascii", unicode.UTF8)
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
}

// Extract parses the structured headers of raw and returns the
// Message-ID value verbatim, enclosing angle brackets included, since
// the destination index compares by exact string equality. The second
// return value is false when the header is missing or the message
// cannot be parsed; the caller skips such messages and never fabricates
// a key.
func Extract(raw []byte) (string, bool) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", false
	}
	if entity == nil {
		return "", false
	}
	id := entity.Header.Get("Message-Id")
	if id == "" {
		return "", false
	}
	return id, true
}
