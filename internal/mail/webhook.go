package mail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LoopHeader is stamped on every email the relay sends and checked on
// every email it receives, so a mis-routed helpdesk auto-reply cannot
// bounce around the bridge forever.
const LoopHeader = "X-Relaydesk-Loop"

const maxInboundFormBytes = 32 << 20

// ParseInbound reads a Mailgun forwarding-route POST. When signingKey is
// set the timestamp/token/signature triple is verified first.
func ParseInbound(r *http.Request, signingKey string) (*Inbound, error) {
	if err := r.ParseMultipartForm(maxInboundFormBytes); err != nil {
		if err2 := r.ParseForm(); err2 != nil {
			return nil, fmt.Errorf("parse form: %w", err2)
		}
	}

	if signingKey != "" {
		if !verifyMailgunSignature(signingKey, r.FormValue("timestamp"), r.FormValue("token"), r.FormValue("signature")) {
			return nil, fmt.Errorf("webhook signature verification failed")
		}
	}

	inbound := &Inbound{
		MessageID:  r.FormValue("Message-Id"),
		From:       r.FormValue("sender"),
		Recipient:  firstAddress(r.FormValue("recipient")),
		Subject:    r.FormValue("subject"),
		Text:       r.FormValue("body-plain"),
		HTML:       r.FormValue("body-html"),
		ReceivedAt: time.Now(),
	}
	if inbound.From == "" {
		inbound.From = r.FormValue("from")
	}

	applyHeaders(inbound, r.FormValue("message-headers"))
	if inbound.AutoSubmitted == "" {
		inbound.AutoSubmitted = r.FormValue("Auto-Submitted")
	}

	files, err := readAttachments(r)
	if err != nil {
		return nil, err
	}
	inbound.Files = files
	return inbound, nil
}

func verifyMailgunSignature(signingKey, timestamp, token, signature string) bool {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func firstAddress(recipient string) string {
	parts := strings.Split(recipient, ",")
	return strings.TrimSpace(parts[0])
}

// applyHeaders scans the message-headers JSON array for loop and
// auto-response markers.
func applyHeaders(inbound *Inbound, raw string) {
	if raw == "" {
		return
	}
	var headers [][2]any
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return
	}
	for _, h := range headers {
		name, _ := h[0].(string)
		value, _ := h[1].(string)
		switch {
		case strings.EqualFold(name, LoopHeader):
			inbound.LoopMarker = true
		case strings.EqualFold(name, "Auto-Submitted"):
			inbound.AutoSubmitted = value
		case strings.EqualFold(name, "Message-Id") && inbound.MessageID == "":
			inbound.MessageID = value
		}
	}
}

func readAttachments(r *http.Request) ([]Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	inlineIDs := inlineContentIDs(r.FormValue("content-id-map"))

	var files []Attachment
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, "attachment-") {
			continue
		}
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
			}
			files = append(files, Attachment{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
				Inline:      inlineIDs[field],
			})
		}
	}
	return files, nil
}

// inlineContentIDs maps attachment field names referenced from the HTML
// body via cid: links. Those parts are decorative, not documents.
func inlineContentIDs(raw string) map[string]bool {
	ids := make(map[string]bool)
	if raw == "" {
		return ids
	}
	var cidMap map[string]string
	if err := json.Unmarshal([]byte(raw), &cidMap); err != nil {
		return ids
	}
	for _, field := range cidMap {
		ids[field] = true
	}
	return ids
}
