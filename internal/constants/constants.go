package constants

// Fixed values shared across the service
const (
	// UserAgent identifies outbound netcenter requests to a human contact
	UserAgent = "SOSETH netcenter automation (vsos-support@sos.ethz.ch)"

	// NoreplyName is the display name of the notification sender mailbox
	NoreplyName = "vsos noreply"

	// SubjectProd is the notification subject in production
	SubjectProd = "VM Request"

	// SubjectTest is the notification subject in every other deployment
	SubjectTest = "[Test-Please-Ignore] VM Request"

	// SuccessPath is where accepted submissions are redirected
	SuccessPath = "/success"

	// FreeIPv4Path is the netcenter REST path for free IPv4 addresses, formatted with the subnet
	FreeIPv4Path = "/netcenter/rest/nameToIP/freeIps/v4/%s"
)
