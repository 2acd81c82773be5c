package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindr/internal/domain"
)

// Sign computes X-Twilio-Signature: HMAC-SHA1 over the full URL followed
// by every form key and value in key order.
func Sign(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(authToken, fullURL, provided string, form url.Values) bool {
	expected := Sign(authToken, fullURL, form)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// maxMedia is the most attachments Twilio delivers on one inbound message.
const maxMedia = 10

// ParseInbound reads an incoming-message webhook form.
func ParseInbound(form url.Values, receivedAt time.Time) domain.InboundMessage {
	msg := domain.InboundMessage{
		From:         form.Get("From"),
		Body:         form.Get("Body"),
		CarrierMsgID: form.Get("MessageSid"),
		ReceivedAt:   receivedAt,
	}
	n, _ := strconv.Atoi(form.Get("NumMedia"))
	if n > maxMedia {
		n = maxMedia
	}
	for i := 0; i < n; i++ {
		idx := strconv.Itoa(i)
		u := form.Get("MediaUrl" + idx)
		if u == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			URL:         u,
			ContentType: form.Get("MediaContentType" + idx),
		})
	}
	return msg
}

type StatusCallback struct {
	MessageSid string
	Status     string
	ErrorCode  string
	To         string
}

func ParseStatus(form url.Values) StatusCallback {
	return StatusCallback{
		MessageSid: form.Get("MessageSid"),
		Status:     form.Get("MessageStatus"),
		ErrorCode:  form.Get("ErrorCode"),
		To:         form.Get("To"),
	}
}

// Terminal reports whether a message status will not change again.
func Terminal(status string) bool {
	switch status {
	case "delivered", "undelivered", "failed", "read":
		return true
	}
	return false
}
