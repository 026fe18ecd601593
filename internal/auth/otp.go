package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	otpTTL    = 5 * time.Minute
	otpDigits = 6
)

type otpEntry struct {
	code    string
	expires time.Time
}

// OTPRegistry issues and checks one-time phone verification codes. It stands
// in for an SMS provider: codes are held in memory and surfaced through the
// log instead of a text message.
type OTPRegistry struct {
	mu    sync.Mutex
	codes map[string]otpEntry
	ttl   time.Duration

	// swappable for tests
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPRegistry builds a registry with a five minute code lifetime.
func NewOTPRegistry() *OTPRegistry {
	return &OTPRegistry{
		codes:    make(map[string]otpEntry),
		ttl:      otpTTL,
		now:      time.Now,
		generate: randomCode,
	}
}

// Issue mints a fresh code for the phone, replacing any outstanding one.
func (r *OTPRegistry) Issue(phone string) (string, error) {
	code, err := r.generate()
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	r.mu.Lock()
	r.codes[phone] = otpEntry{code: code, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return code, nil
}

// Verify consumes the outstanding code for the phone. A wrong or expired code
// leaves nothing to retry against; the caller must issue a new one.
func (r *OTPRegistry) Verify(phone, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.codes[phone]
	if !ok {
		return false
	}
	delete(r.codes, phone)
	if r.now().After(entry.expires) {
		return false
	}
	return entry.code == code
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
