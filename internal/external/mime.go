package external

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"emailer/internal/types"
)

// ParseAddresses parses the sender and recipients of msg. Both bare
// addresses and the "Name <addr>" form are accepted.
func ParseAddresses(msg types.Message) (*mail.Address, []*mail.Address, error) {
	from, err := mail.ParseAddress(msg.Sender)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidEmail,
			fmt.Sprintf("invalid sender %q", msg.Sender), err)
	}
	to := make([]*mail.Address, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidEmail,
				fmt.Sprintf("invalid recipient %q", r), err)
		}
		to = append(to, addr)
	}
	return from, to, nil
}

// BuildMIME renders msg as an RFC 5322 text/plain message with a
// quoted-printable UTF-8 body.
func BuildMIME(msg types.Message, now time.Time) ([]byte, error) {
	from, to, err := ParseAddresses(msg)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, len(to))
	for i, a := range to {
		recipients[i] = a.String()
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", strings.Join(recipients, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	if msg.ID != "" {
		writeHeader(&buf, "Message-ID", fmt.Sprintf("<%s@%s>", msg.ID, domainOf(from.Address)))
	}
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/plain; charset="utf-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}
