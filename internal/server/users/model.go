package users

// Attribute names stored on a user item.
const (
	AttrUserID             = "userid"
	AttrHashSaltedPassword = "hash_salted_password"
	AttrEnabled            = "enabled"
)

// User is a registered account. Username is the item name in the users
// domain; the remaining fields are its attributes.
type User struct {
	Username           string
	UserID             string
	HashSaltedPassword string
	// Enabled is stored but not enforced.
	Enabled bool
}
