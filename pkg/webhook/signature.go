package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// DefaultTolerance bounds the age of a signature accepted by Verify.
const DefaultTolerance = 5 * time.Minute

// Signature authenticates a payload: hex HMAC-SHA256 over "<unix>.<payload>".
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Sign computes the signature of payload at the given time.
func Sign(secret string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrEmptyPayload
	}
	ts := at.Unix()
	return Signature{
		Value:     digest(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.NewString(),
	}, nil
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	if s.ID != "" {
		h.Set(HeaderID, s.ID)
	}
}

// String packs the signature into a single "t=<unix>,v1=<hex>" value.
func (s Signature) String() string {
	return fmt.Sprintf("t=%d,v1=%s", s.Timestamp, s.Value)
}

// FromHeader reads the signature headers written by Apply.
func FromHeader(h http.Header) (Signature, error) {
	sig := Signature{Value: h.Get(HeaderSignature), ID: h.Get(HeaderID)}
	if sig.Value == "" {
		return Signature{}, ErrMissingSignature
	}
	raw := h.Get(HeaderTimestamp)
	if raw == "" {
		return Signature{}, errors.Join(ErrMalformedHeader, fmt.Errorf("%s is missing", HeaderTimestamp))
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Signature{}, errors.Join(ErrMalformedHeader, err)
	}
	sig.Timestamp = ts
	return sig, nil
}

// Parse reads the packed form produced by String.
func Parse(v string) (Signature, error) {
	if strings.TrimSpace(v) == "" {
		return Signature{}, ErrMissingSignature
	}
	var sig Signature
	for part := range strings.SplitSeq(v, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Signature{}, ErrMalformedHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return Signature{}, errors.Join(ErrMalformedHeader, err)
			}
			sig.Timestamp = ts
		case "v1":
			sig.Value = val
		}
	}
	if sig.Value == "" || sig.Timestamp == 0 {
		return Signature{}, ErrMalformedHeader
	}
	return sig, nil
}

// Verify checks sig against payload. A zero tolerance disables the age check.
func Verify(secret string, payload []byte, sig Signature, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if sig.Value == "" {
		return ErrMissingSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > tolerance || age < -time.Minute {
			return fmt.Errorf("%w: age %s", ErrSignatureExpired, age)
		}
	}
	expected := digest(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrSignatureMismatch
	}
	return nil
}

func digest(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
