// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

// UserAgent is sent with outbound requests to the model service
const UserAgent = "ecogmark/" + Version
