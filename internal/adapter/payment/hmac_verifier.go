// Package payment holds the payment gateway side of bill confirmation.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrBadSignature = errors.New("signature mismatch")

// HMACVerifier checks a hex HMAC-SHA256 over "<bill id>|<amount>" made with
// the secret shared with the gateway.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Sign(billID string, amount decimal.Decimal) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(billID + "|" + amount.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(billID string, amount decimal.Decimal, signature string) error {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(v.Sign(billID, amount))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}
