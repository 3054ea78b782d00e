package config

import (
	"os"
	"strconv"
)

// Runtime is the Lambda execution environment of the forwarder, read from the variables the Lambda service sets.
// All fields are empty outside Lambda.
type Runtime struct {
	// API is host:port of the Lambda runtime API.
	API             string
	Region          string
	FunctionName    string
	FunctionVersion string
	MemoryMB        int
}

// LoadRuntime reads Runtime from the process environment.
func LoadRuntime() Runtime {
	memoryMB, _ := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))

	return Runtime{
		API:             os.Getenv("AWS_LAMBDA_RUNTIME_API"),
		Region:          os.Getenv("AWS_REGION"),
		FunctionName:    os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		FunctionVersion: os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
		MemoryMB:        memoryMB,
	}
}

// InLambda reports whether the process was started by the Lambda runtime.
func (r Runtime) InLambda() bool {
	return r.API != ""
}

// TraceHeader returns the X-Ray header of the current invocation.
// The runtime replaces it before every invocation, so it is never cached in Runtime.
func TraceHeader() string {
	return os.Getenv("_X_AMZN_TRACE_ID")
}
