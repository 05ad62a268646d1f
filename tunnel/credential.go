package tunnel

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/pathlake/slideagent/cmn"
)

// credentialTTL bounds how long a single connect-time credential is
// valid; a fresh one is minted on every dial, including reconnects.
const credentialTTL = 2 * time.Minute

// issueCredential signs a short-lived HS256 JWT identifying this agent,
// sent as the Authorization header on the initial websocket handshake
// (SPEC_FULL.md §4 C11: golang-jwt signs the agent's authorization
// credential sent at connect time; the agent itself never verifies one).
func issueCredential(agentID, secret string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   agentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(credentialTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", cmn.NewError("tunnel.credential", cmn.KindConfigMiss, "sign credential", err)
	}
	return signed, nil
}
