package analyzer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/stackvity/mail-analyzer/pkg/analyzer/encoding"
)

// MailRecord is the result of parsing one mail file: the sender (possibly
// empty) and every validated recipient found in its To/Cc/Bcc fields.
type MailRecord struct {
	Sender     string
	Recipients []string
}

// String renders the record as one line of the shared record file, without
// the trailing newline: the sender followed by each recipient, space separated.
func (r MailRecord) String() string {
	var b strings.Builder
	b.WriteString(r.Sender)
	for _, rcpt := range r.Recipients {
		b.WriteByte(' ')
		b.WriteString(rcpt)
	}
	return b.String()
}

// headerState tracks whether the scanner is inside a destination field.
type headerState int

const (
	outOfDestField headerState = iota
	inDestField
)

// IsMail applies the loose address check: the token must contain an '@'
// (before any NUL byte) and a '.' somewhere after that '@'. "@." passes.
func IsMail(token string) bool {
	if nul := strings.IndexByte(token, 0); nul >= 0 {
		token = token[:nul]
	}
	at := strings.IndexByte(token, '@')
	if at < 0 {
		return false
	}
	return strings.IndexByte(token[at+1:], '.') >= 0
}

// ParseMail scans the headers of one mail and returns its record.
//
// The scan is line oriented and case sensitive. The first From: line gives the
// sender; the first To:, Cc: and Bcc: lines each open a destination field that
// continues over tab-indented lines. The scan stops once all four headers have
// been seen, or at end of input. Malformed headers and addresses are dropped
// silently. Only read failures are returned, together with the partial record.
func ParseMail(r io.Reader, decoder encoding.HeaderDecoder) (MailRecord, error) {
	var rec MailRecord
	var seenFrom, seenTo, seenCc, seenBcc bool
	state := outOfDestField
	br := bufio.NewReader(r)
	for {
		raw, readErr := br.ReadBytes('\n')
		if len(raw) > 0 {
			line := decodeLine(raw, decoder)

			if state == inDestField && !strings.HasPrefix(line, "\t") {
				state = outOfDestField
			}
			switch {
			case !seenFrom && strings.HasPrefix(line, "From:"):
				seenFrom = true
				rec.Sender = extractSender(line)
			case !seenTo && strings.HasPrefix(line, "To:"):
				seenTo = true
				state = inDestField
			case !seenCc && strings.HasPrefix(line, "Cc:"):
				seenCc = true
				state = inDestField
			case !seenBcc && strings.HasPrefix(line, "Bcc:"):
				seenBcc = true
				state = inDestField
			}
			if state == inDestField {
				rec.Recipients = append(rec.Recipients, extractAddresses(line)...)
			}
			if seenFrom && seenTo && seenCc && seenBcc {
				return rec, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return rec, nil
			}
			return rec, fmt.Errorf("%w: %w", ErrReadFailed, readErr)
		}
	}
}

// decodeLine strips the line terminator (LF or CRLF) and converts the bytes
// to a string, through the header decoder when one is configured.
func decodeLine(raw []byte, decoder encoding.HeaderDecoder) string {
	n := len(raw)
	if n > 0 && raw[n-1] == '\n' {
		n--
	}
	if n > 0 && raw[n-1] == '\r' {
		n--
	}
	if decoder == nil {
		return string(raw[:n])
	}
	return decoder.DecodeLine(raw[:n])
}

// extractSender returns the first token after the first space of a From: line,
// or "" when that token is not a mail address.
func extractSender(line string) string {
	space := strings.IndexByte(line, ' ')
	if space < 0 {
		return ""
	}
	fields := strings.Fields(line[space+1:])
	if len(fields) == 0 || !IsMail(fields[0]) {
		return ""
	}
	return fields[0]
}

// extractAddresses returns the valid comma-separated addresses of one
// destination-field line, each at most once. Header lines are read after their
// first space, continuation lines after their leading tab.
func extractAddresses(line string) []string {
	var rest string
	if strings.HasPrefix(line, "\t") {
		rest = line[1:]
	} else {
		space := strings.IndexByte(line, ' ')
		if space < 0 {
			return nil
		}
		rest = line[space+1:]
	}

	var found []string
	seen := make(map[string]struct{})
	for _, token := range strings.Split(rest, ",") {
		token = strings.TrimSpace(token)
		if !IsMail(token) {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		found = append(found, token)
	}
	return found
}
