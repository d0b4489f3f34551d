// Package token generates and formats the three kinds of opaque codes
// this service hands to voters and poll owners: ballot tokens
// (invited voters), registration tokens (poll owner invitations), and
// voting receipts (proof of a specific submission without revealing
// its content).
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const ballotTokenEntropyChars = 6

var base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateBallotToken returns a token shaped VOTE-YYYY-XXXXXX, matching
// the original implementation's format so existing receipts and
// support tooling built around that shape keep working.
func GenerateBallotToken(now time.Time) (string, error) {
	suffix, err := randomBase36(ballotTokenEntropyChars)
	if err != nil {
		return "", fmt.Errorf("generating ballot token: %w", err)
	}
	return fmt.Sprintf("VOTE-%d-%s", now.Year(), suffix), nil
}

// GenerateRegistrationToken returns an opaque reg_-prefixed token a
// poll owner sends to invite a voter who does not yet have a voter
// record.
func GenerateRegistrationToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating registration token: %w", err)
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return "reg_" + strings.ToLower(enc), nil
}

// Receipt is a voter-facing confirmation that a ballot was recorded,
// without exposing its contents.
type Receipt struct {
	Code             string
	VerificationNote string
}

// BuildReceipt derives a receipt code from the ballot ID and whether
// the ballot was anonymous, unifying the three call sites the original
// implementation duplicated this construction across.
func BuildReceipt(ballotID string, anonymous bool, now time.Time) Receipt {
	prefix := "VOTE"
	if anonymous {
		prefix = "ANON"
	}
	segment := ballotID
	if i := strings.IndexByte(ballotID, '-'); i >= 0 {
		segment = ballotID[:i]
	}
	code := fmt.Sprintf("%s-%d-%s", prefix, now.Year(), segment)
	return Receipt{
		Code:             code,
		VerificationNote: "This code proves a ballot was recorded; it does not reveal how you voted.",
	}
}

// SignRegistrationToken returns an HMAC-SHA256 tag over token using
// key, so a registration link can be verified as genuinely issued by
// this service without a database round trip.
func SignRegistrationToken(key []byte, token string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRegistrationToken reports whether sig is the valid signature
// for token under key.
func VerifyRegistrationToken(key []byte, token, sig string) bool {
	want := SignRegistrationToken(key, token)
	return hmac.Equal([]byte(want), []byte(sig))
}

func randomBase36(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36[int(b)%len(base36)]
	}
	return string(out), nil
}
