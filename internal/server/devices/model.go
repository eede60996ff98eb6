package devices

// Attribute names stored on a device item.
const (
	AttrKey    = "key"
	AttrUserID = "userid"
)

// Device is a registered client device keyed by its uid.
type Device struct {
	UID    string
	Key    string
	UserID string
}
