// ABOUTME: Version and product identity of the discovery tools
// ABOUTME: Reported by the version command and the bridge health endpoint
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.3.0"

const (
	Product      = "Aaxion Discover"
	Manufacturer = "Aaxion"
)

// String returns a one-line identity such as "Aaxion Discover 0.3.0 (Aaxion)"
func String() string {
	return Product + " " + Version + " (" + Manufacturer + ")"
}
