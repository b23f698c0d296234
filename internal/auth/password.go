package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted bcrypt digest. Two calls on the same
// plaintext yield different strings; both verify.
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether plain matches the stored digest. A
// malformed digest verifies false; the comparison itself is constant time
// inside bcrypt, so a mismatch position is not observable.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
