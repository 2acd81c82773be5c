package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NormalizePhone strips whitespace and common separators from an address.
// TODO: validate E.164 with libphonenumber once non-US carriers are added.
func NormalizePhone(p string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	return r.Replace(strings.TrimSpace(p))
}

// RenderTemplate does {var} replacement.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// NewID returns a prefixed ULID; ULIDs sort by creation time.
func NewID(prefix string) string {
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewReminderID() string  { return NewID("rem") }
func NewRecipientID() string { return NewID("rcp") }
func NewResponseID() string  { return NewID("rsp") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
