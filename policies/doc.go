// Package policies defines the two policy variants (OTP and cosign), their
// session templates and the default state record each variant starts from.
//
// Templates use {{name}} placeholders bound to the fields of
// interfaces.PolicyState plus predecessor_key/predecessor, which chain a
// session to the version it replaces.
package policies
