package credstore

// Platform identifies the runtime environment the client was started in.
type Platform string

const (
	// PlatformWeb is a regular browser-like environment: ordinary storage.
	PlatformWeb Platform = "web"
	// PlatformMobileShell is the packaged mobile app: secure keystore.
	PlatformMobileShell Platform = "mobile-shell"
)

// Select chooses the storage backend for the platform. Decided once at
// startup; the rest of the client never asks again.
func Select(p Platform, dir, deviceSecret string) (Store, error) {
	base, err := NewFile(dir)
	if err != nil {
		return nil, err
	}
	if p == PlatformMobileShell {
		return NewKeystore(base, deviceSecret), nil
	}
	return base, nil
}
