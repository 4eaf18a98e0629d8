package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSubject is returned when a verified token carries no usable user id.
	ErrNoSubject = errors.New("token has no subject")

	// ErrInvalidToken wraps every signature, expiry, or issuer failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Subject claims in order of preference. uid and nameid carry the stable
// numeric user id; sub is the generic fallback.
var subjectClaims = []string{"uid", "nameid", "sub"}

// Verifier checks HS256 bearer tokens issued by the identity backend.
type Verifier struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a Verifier for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		key:    []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
	}
}

// Verify validates tokenStr and returns the user id it identifies.
func (v *Verifier) Verify(tokenStr string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return SubjectFromClaims(claims)
}

// SubjectFromClaims resolves the user id from verified claims. The first
// claim that parses wins; an unparsable one falls through to the next.
func SubjectFromClaims(claims jwt.MapClaims) (int64, error) {
	var errs []error
	for _, name := range subjectClaims {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		id, err := parseID(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", name, err))
			continue
		}
		return id, nil
	}
	if len(errs) > 0 {
		return 0, fmt.Errorf("%w: %w", ErrNoSubject, errors.Join(errs...))
	}
	return 0, ErrNoSubject
}

func parseID(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v <= 0 || v != float64(int64(v)) {
			return 0, fmt.Errorf("not a user id: %v", v)
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("not a user id: %q", v)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("unsupported claim type %T", raw)
	}
}

// MintToken signs a development token for userID. Production tokens come
// from the identity backend; this exists for the `crier token` command and tests.
func MintToken(secret, issuer string, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"uid": strconv.FormatInt(userID, 10),
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	if issuer != "" {
		claims["iss"] = issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
