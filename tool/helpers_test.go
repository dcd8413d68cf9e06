package tool_test

import "github.com/Manoj-tawk/tawk-agents-sdk-sub004/telemetry"

func telemetryNoop() telemetry.Bundle {
	return telemetry.NoopBundle()
}
