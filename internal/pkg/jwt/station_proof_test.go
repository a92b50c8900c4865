// internal/pkg/jwt/station_proof_test.go
package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &Manager{
		Generator: NewGenerator(key, "glasstrace", "glasstrace-clients", "test-kid", 15*time.Minute, 24*time.Hour),
		Verifier:  NewVerifier(&key.PublicKey, "glasstrace", "glasstrace-clients"),
	}
}

func TestStationProofRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	proof, err := mgr.Generator.GenerateStationProof("STATION_CUTTING_01")
	require.NoError(t, err)

	stationID, jti, err := mgr.Verifier.VerifyStationProof(proof)
	require.NoError(t, err)
	assert.Equal(t, "STATION_CUTTING_01", stationID)
	assert.NotEmpty(t, jti)

	// Each proof gets its own JTI so consumers can enforce single use.
	second, err := mgr.Generator.GenerateStationProof("STATION_CUTTING_01")
	require.NoError(t, err)
	_, jti2, err := mgr.Verifier.VerifyStationProof(second)
	require.NoError(t, err)
	assert.NotEqual(t, jti, jti2)
}

func TestStationProofRejectsOtherPurposes(t *testing.T) {
	mgr := newTestManager(t)

	// An access token must not open a service session.
	access, _, err := mgr.Generator.GenerateAccessToken(42, "operator")
	require.NoError(t, err)
	_, _, err = mgr.Verifier.VerifyStationProof(access)
	assert.Error(t, err)

	_, _, err = mgr.Verifier.VerifyStationProof("not-a-token")
	assert.Error(t, err)
}

func TestStationProofRejectsForeignSignature(t *testing.T) {
	mgr := newTestManager(t)
	other := newTestManager(t)

	proof, err := other.Generator.GenerateStationProof("STATION_CUTTING_01")
	require.NoError(t, err)

	_, _, err = mgr.Verifier.VerifyStationProof(proof)
	assert.Error(t, err)
}
