package capture

import "context"

// BiometricVerifier checks a client-supplied credential. The portal ships
// only StubVerifier: it is a placeholder surface, not security logic, and
// nothing else in the system may treat its answer as authentication.
type BiometricVerifier interface {
	Verify(ctx context.Context, credential string) (bool, error)
}

// StubVerifier accepts any non-empty credential.
type StubVerifier struct{}

// Verify reports success for any non-empty credential.
func (StubVerifier) Verify(ctx context.Context, credential string) (bool, error) {
	return credential != "", nil
}

var _ BiometricVerifier = StubVerifier{}
