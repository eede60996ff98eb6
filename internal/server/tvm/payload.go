package tvm

import (
	"encoding/json"
	"strconv"

	"github.com/dmitrijs2005/gophtvm/internal/server/credentials"
)

// TokenPayload is the plaintext of a token response.
type TokenPayload struct {
	AccessKey      string `json:"accessKey"`
	SecretKey      string `json:"secretKey"`
	SecurityToken  string `json:"securityToken"`
	ExpirationDate string `json:"expirationDate"`
}

// KeyPayload is the plaintext of a login response.
type KeyPayload struct {
	Key string `json:"key"`
}

func tokenJSON(c *credentials.Credentials) (string, error) {
	b, err := json.Marshal(TokenPayload{
		AccessKey:      c.AccessKeyID,
		SecretKey:      c.SecretAccessKey,
		SecurityToken:  c.SessionToken,
		ExpirationDate: strconv.FormatInt(c.Expiration.UnixMilli(), 10),
	})
	return string(b), err
}

func keyJSON(key string) (string, error) {
	b, err := json.Marshal(KeyPayload{Key: key})
	return string(b), err
}
