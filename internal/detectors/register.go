package detectors

import "github.com/lippycat/svcid/internal/appid"

// init registers every built-in collaborator in a fixed order (spec §4.3
// "registration order... determined by the static list"), grounded on the
// teacher's registry.go InitDefault() list. BGP is appended last since it is
// the spec's own addition, not part of the teacher's original ordering.
func init() {
	appid.RegisterStatic(registerDNS)
	appid.RegisterStatic(registerSSH)
	appid.RegisterStatic(registerSNMPTrap)
	appid.RegisterStatic(registerFTP)
	appid.RegisterStatic(registerSMTP)
	appid.RegisterStatic(registerTelnet)
	appid.RegisterStatic(registerHTTP)
	appid.RegisterStatic(registerBGP)
}
