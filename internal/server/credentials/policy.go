package credentials

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/dmitrijs2005/gophtvm/internal/cryptox"
)

//go:embed policy.json
var defaultPolicy string

// Template placeholders.
const (
	PlaceholderAccountID     = "__ACCOUNT_ID__"
	PlaceholderRegion        = "__REGION__"
	PlaceholderUsersDomain   = "__USERS_DOMAIN__"
	PlaceholderDevicesDomain = "__DEVICE_DOMAIN__"
	PlaceholderUsername      = "__USERNAME__"
)

// PolicyParams are the process-wide placeholder values.
type PolicyParams struct {
	AccountID     string
	Region        string
	UsersDomain   string
	DevicesDomain string
}

// PolicyTemplate renders the per-user access policy.
type PolicyTemplate struct {
	raw string
}

// NewPolicyTemplate parses raw with the fixed params. The placeholders
// other than the username are substituted once here.
func NewPolicyTemplate(raw string, params PolicyParams) (*PolicyTemplate, error) {
	if !strings.Contains(raw, PlaceholderUsername) {
		return nil, fmt.Errorf("policy template lacks %s", PlaceholderUsername)
	}
	r := strings.NewReplacer(
		PlaceholderAccountID, params.AccountID,
		PlaceholderRegion, params.Region,
		PlaceholderUsersDomain, params.UsersDomain,
		PlaceholderDevicesDomain, params.DevicesDomain,
	)
	return &PolicyTemplate{raw: r.Replace(raw)}, nil
}

// LoadPolicyTemplate reads path, or uses the embedded default when path
// is empty.
func LoadPolicyTemplate(path string, params PolicyParams) (*PolicyTemplate, error) {
	raw := defaultPolicy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", path, err)
		}
		raw = string(b)
	}
	return NewPolicyTemplate(raw, params)
}

// Render substitutes username. The username is checked against the
// username charset first so it cannot break out of a JSON string, and the
// result must be valid JSON.
func (t *PolicyTemplate) Render(username string) (string, error) {
	if !cryptox.IsValidUsername(username) {
		return "", fmt.Errorf("policy username %q: %w", username, common.ErrorValidation)
	}
	out := strings.ReplaceAll(t.raw, PlaceholderUsername, username)
	if !json.Valid([]byte(out)) {
		return "", fmt.Errorf("rendered policy is not valid JSON: %w", common.ErrorInternal)
	}
	return out, nil
}
