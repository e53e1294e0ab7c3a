package bidsonym

// Version is reported by the CLI and written into operation logs.
var Version = "0.1.0"

// ToolName names the backup directory under sourcedata/.
const ToolName = "bidsonym"

// Sentinel replaces the value of every scrubbed metadata field.
const Sentinel = "deleted_by_bidsonym"

// ContainerEnv is set inside the published container images. It only changes
// how validator failures are explained to the user.
const ContainerEnv = "IS_DOCKER_8395080871"
