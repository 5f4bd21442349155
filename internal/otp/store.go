package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeInvalid     = errors.New("invalid or expired code")
	ErrTooManyAttempts = errors.New("too many attempts")
)

const (
	codeDigits      = 6
	defaultTTL      = 10 * time.Minute
	defaultAttempts = 5
)

// Store keeps one-time password-reset codes in Redis. A code lives for a
// fixed TTL, allows a bounded number of verification attempts, and is
// deleted on first successful use.
type Store struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxAttempts int
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:         rdb,
		ttl:         defaultTTL,
		maxAttempts: defaultAttempts,
	}
}

func codeKey(email string) string {
	return "otp:reset:" + email
}

func attemptsKey(email string) string {
	return "otp:reset_attempts:" + email
}

// Issue generates a fresh code for the email, replacing any outstanding one
// and clearing its attempt counter.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()

	if err != nil {
		return "", err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, codeKey(email), code, s.ttl)
	pipe.Del(ctx, attemptsKey(email))

	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	return code, nil
}

// Verify checks the presented code. The code is burned on success and after
// the attempt budget is exhausted.
func (s *Store) Verify(ctx context.Context, email, code string) error {
	attempts, err := s.rdb.Incr(ctx, attemptsKey(email)).Result()

	if err != nil {
		return err
	}

	if attempts == 1 {
		// attempt counter must not outlive the code itself
		s.rdb.Expire(ctx, attemptsKey(email), s.ttl)
	}

	if attempts > int64(s.maxAttempts) {
		s.burn(ctx, email)
		return ErrTooManyAttempts
	}

	stored, err := s.rdb.Get(ctx, codeKey(email)).Result()

	if errors.Is(err, redis.Nil) {
		return ErrCodeInvalid
	}

	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrCodeInvalid
	}

	s.burn(ctx, email)

	return nil
}

func (s *Store) burn(ctx context.Context, email string) {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, codeKey(email))
	pipe.Del(ctx, attemptsKey(email))
	_, _ = pipe.Exec(ctx)
}

func generateCode() (string, error) {
	upper := big.NewInt(1)

	for i := 0; i < codeDigits; i++ {
		upper.Mul(upper, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, upper)

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
