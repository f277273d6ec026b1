package runpaymentreminders

import "billing-workers/internal/common/validation"

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"properties": {
		"includeExpiry": {"type": "boolean"}
	}
}`)
