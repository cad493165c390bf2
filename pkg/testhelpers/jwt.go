package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT builds an unsigned (alg: none) token accepted when
// JWT verification is disabled.
func GenerateTestJWT(sub, workspaceID string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub}
	if workspaceID != "" {
		claims["wid"] = workspaceID
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix.
func GenerateTestJWTWithBearer(sub, workspaceID string, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, workspaceID, roles...)
}
