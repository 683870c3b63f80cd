// Package publiclink issues and verifies the opaque tokens behind public
// signing links. A token embeds the document and signer identity, so the
// unauthenticated signing surface never sees internal ids in its URL.
package publiclink

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/signdesk/internal/errs"
)

type claims struct {
	DocumentID string `json:"doc"`
	SignerID   string `json:"sgn"`
	jwt.RegisteredClaims
}

// Issuer signs and parses public-link tokens with an HS256 key.
type Issuer struct {
	signKey []byte
	ttl     time.Duration
	baseURL string
}

// NewIssuer constructs an Issuer. baseURL is the public host the link is
// built against, e.g. "https://sign.example".
func NewIssuer(signKey []byte, ttl time.Duration, baseURL string) *Issuer {
	return &Issuer{signKey: signKey, ttl: ttl, baseURL: baseURL}
}

// Issue creates a token scoped to one signer of one document and the full
// link to embed in an invitation.
func (i *Issuer) Issue(documentID, signerID uuid.UUID) (token, link string, err error) {
	now := time.Now()
	c := claims{
		DocumentID: documentID.String(),
		SignerID:   signerID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(i.signKey)
	if err != nil {
		return "", "", err
	}
	return signed, fmt.Sprintf("%s/sign/%s", i.baseURL, signed), nil
}

// Parse verifies a token and returns the document and signer it is scoped
// to. Invalid, expired or foreign-key tokens all map to ErrUnauthorized.
func (i *Issuer) Parse(token string) (documentID, signerID uuid.UUID, err error) {
	var c claims
	tok, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.signKey, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, uuid.Nil, errs.ErrUnauthorized
	}
	documentID, err = uuid.FromString(c.DocumentID)
	if err != nil {
		return uuid.Nil, uuid.Nil, errs.ErrUnauthorized
	}
	signerID, err = uuid.FromString(c.SignerID)
	if err != nil {
		return uuid.Nil, uuid.Nil, errs.ErrUnauthorized
	}
	return documentID, signerID, nil
}
