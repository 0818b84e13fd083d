package version

// APP_VERSION is overridden at build time with
// -ldflags "-X github.com/SkylogUAS/Skylog/version.APP_VERSION=..."
var APP_VERSION = "0.3.1-dev"
