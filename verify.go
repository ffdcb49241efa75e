package lcservice

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Verifier authenticates envelopes with a secret shared with the platform.
//
// A Verifier built with an empty secret accepts everything. That mode exists
// for local development and is announced once with a warning.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string, logger *slog.Logger) *Verifier {
	if secret == "" {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("origin verification disabled, this should not be in production")
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether signatures are checked.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Sign returns the hex HMAC-SHA256 of the canonical form of payload.
func (v *Verifier) Sign(payload []byte) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches payload.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		return true
	}
	expected, err := v.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// verifyContext is Verify for transports that log with a request context.
func (v *Verifier) verifyContext(ctx context.Context, logger *slog.Logger, payload []byte, signature string) bool {
	if v.Verify(payload, signature) {
		return true
	}
	logger.WarnContext(ctx, "rejected envelope with bad origin signature")
	return false
}

// Canonicalize re-encodes a JSON document in the byte form the platform
// signs: object keys sorted, ", " and ": " separators, non-ASCII escaped as
// \uXXXX, integers kept as written and floats in shortest round-trip form.
func Canonicalize(payload []byte) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrInvalidJSON
	}
	var buf bytes.Buffer
	writeCanonical(&buf, gjson.ParseBytes(payload))
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, r gjson.Result) {
	switch {
	case r.IsObject():
		// Later duplicates win, as they would in a decoded map.
		fields := map[string]gjson.Result{}
		r.ForEach(func(k, v gjson.Result) bool {
			fields[k.String()] = v
			return true
		})
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeString(buf, k)
			buf.WriteString(": ")
			writeCanonical(buf, fields[k])
		}
		buf.WriteByte('}')
	case r.IsArray():
		buf.WriteByte('[')
		for i, v := range r.Array() {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeCanonical(buf, v)
		}
		buf.WriteByte(']')
	case r.Type == gjson.String:
		writeString(buf, r.Str)
	case r.Type == gjson.Number:
		writeNumber(buf, r.Raw)
	case r.Type == gjson.True:
		buf.WriteString("true")
	case r.Type == gjson.False:
		buf.WriteString("false")
	default:
		buf.WriteString("null")
	}
}

func writeNumber(buf *bytes.Buffer, raw string) {
	if !strings.ContainsAny(raw, ".eE") {
		if raw == "-0" {
			raw = "0"
		}
		buf.WriteString(raw)
		return
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		buf.WriteString(raw)
		return
	}
	buf.WriteString(formatFloat(f))
}

// formatFloat renders f with the fewest digits that round-trip, switching to
// exponent form below 1e-4 and from 1e16 on, with a two digit exponent.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	i := strings.IndexByte(sci, 'e')
	mant := sci[:i]
	exp, _ := strconv.Atoi(sci[i+1:])
	if exp >= -4 && exp < 16 {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	sign := '+'
	if exp < 0 {
		sign = '-'
		exp = -exp
	}
	return fmt.Sprintf("%se%c%02d", mant, sign, exp)
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case c >= 0x20 && c <= 0x7e:
				buf.WriteRune(c)
			case c > 0xffff:
				r1, r2 := surrogates(c)
				writeEscape(buf, r1)
				writeEscape(buf, r2)
			default:
				writeEscape(buf, c)
			}
		}
	}
	buf.WriteByte('"')
}

func surrogates(c rune) (rune, rune) {
	c -= 0x10000
	return 0xd800 + (c>>10)&0x3ff, 0xdc00 + c&0x3ff
}

func writeEscape(buf *bytes.Buffer, c rune) {
	buf.WriteString(`\u`)
	h := strconv.FormatInt(int64(c), 16)
	for i := len(h); i < 4; i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(h)
}
