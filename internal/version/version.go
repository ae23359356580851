// ABOUTME: Build identity shared by the server and client binaries
// ABOUTME: Version may be overridden at link time with -ldflags -X
package version

// Version is the release version.
var Version = "0.3.0"

const (
	// Product names the software in logs and the dashboard.
	Product = "confbridge"
	// Manufacturer is reported alongside Product.
	Manufacturer = "linksphere"
)
