package youtube

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidState はコールバックの state が検証できなかったことを示します。
var ErrInvalidState = errors.New("invalid oauth state")

const stateIssuer = "live-chat-poster"

// StateSigner は OAuth の state を署名付きトークンとして発行・検証します。
// 鍵はプロセスごとに生成されるため、発行時にサーバー側へ何も保存しません。
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner はランダムな鍵を持つ StateSigner を作成します。
func NewStateSigner(ttl time.Duration) (*StateSigner, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("state 鍵の生成に失敗: %w", err)
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue は新しい state を返します。
func (s *StateSigner) Issue() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    stateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("state の署名に失敗: %w", err)
	}
	return state, nil
}

// Verify は state の署名と有効期限を検証します。
func (s *StateSigner) Verify(state string) error {
	if state == "" {
		return fmt.Errorf("%w: empty", ErrInvalidState)
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}
