package model

// TemboIdentity holds the claims Tembo reports for an authenticated
// credential. UserID and OrgID are required; Email may be empty.
type TemboIdentity struct {
	UserID string
	OrgID  string
	Email  string
}

// Complete reports whether the identity carries the claims a successful
// validation requires.
func (id TemboIdentity) Complete() bool {
	return id.UserID != "" && id.OrgID != ""
}
