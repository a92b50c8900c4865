// internal/pkg/jwt/station_proof.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// StationProofTTL bounds how long a successful station authentication may
// be exchanged for a service session.
const StationProofTTL = 2 * time.Minute

const purposeStationProof = "station_proof"

// GenerateStationProof mints the short-lived token a station presents when
// opening a service session. The station id rides in the subject claim; the
// JTI lets the consumer enforce single use.
func (g *Generator) GenerateStationProof(stationID string) (string, error) {
	if g.priv == nil {
		return "", fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	claims := &Claims{
		Purpose: purposeStationProof,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   stationID,
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(StationProofTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}
	return tok.SignedString(g.priv)
}

// VerifyStationProof validates a proof token and returns the station id it
// was minted for together with its JTI.
func (v *Verifier) VerifyStationProof(tokenString string) (stationID, jti string, err error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return "", "", err
	}
	if claims.Purpose != purposeStationProof {
		return "", "", fmt.Errorf("token is not a station proof")
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("station proof carries no station id")
	}
	return claims.Subject, claims.ID, nil
}
