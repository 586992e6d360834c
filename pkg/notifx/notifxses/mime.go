package notifxses

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

// buildMIME renders msg as a multipart/mixed message. The body part is
// multipart/alternative when both text and HTML are present. BCC recipients
// are never written to headers.
func buildMIME(msg notifx.EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		header("Cc", strings.Join(msg.CC, ", "))
	}
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("UTF-8", msg.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/mixed; boundary="+mixed.Boundary())
	buf.WriteString("\r\n")

	if err := writeBody(mixed, msg); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", fmt.Sprintf("%s; name=%q", ct, a.Filename))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		w, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(w, a.Data); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBody(mixed *multipart.Writer, msg notifx.EmailMessage) error {
	if msg.TextBody != "" && msg.HTMLBody != "" {
		var alt bytes.Buffer
		altWriter := multipart.NewWriter(&alt)
		if err := writeTextPart(altWriter, "text/plain", msg.TextBody); err != nil {
			return err
		}
		if err := writeTextPart(altWriter, "text/html", msg.HTMLBody); err != nil {
			return err
		}
		if err := altWriter.Close(); err != nil {
			return err
		}

		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "multipart/alternative; boundary="+altWriter.Boundary())
		w, err := mixed.CreatePart(h)
		if err != nil {
			return err
		}
		_, err = w.Write(alt.Bytes())
		return err
	}

	if msg.HTMLBody != "" {
		return writeTextPart(mixed, "text/html", msg.HTMLBody)
	}
	return writeTextPart(mixed, "text/plain", msg.TextBody)
}

func writeTextPart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=UTF-8")
	h.Set("Content-Transfer-Encoding", "base64")
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	return writeBase64Lines(w, []byte(body))
}

// writeBase64Lines wraps encoded output at 76 characters.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}
