package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the subject a credential is issued for.
type Identity struct {
	ID     string
	RollNo string
	Role   string
}

// Token is a signed credential with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims represents JWT payload.
type Claims struct {
	ID     string `json:"id"`
	RollNo string `json:"rollno"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the subject carried by the claims.
func (c Claims) Identity() Identity {
	return Identity{ID: c.ID, RollNo: c.RollNo, Role: c.Role}
}

// Issuer signs and verifies HS256 credentials.
type Issuer struct {
	Name string
	Key  []byte
	TTL  time.Duration
	now  func() time.Time
}

// NewIssuer creates an issuer; a non-positive ttl defaults to one hour.
func NewIssuer(name, key string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{Name: name, Key: []byte(key), TTL: ttl, now: time.Now}
}

// Issue issues a signed credential for id.
func (i *Issuer) Issue(id Identity) (Token, error) {
	now := i.now()
	exp := now.Add(i.TTL)

	claims := Claims{
		ID:     id.ID,
		RollNo: id.RollNo,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
