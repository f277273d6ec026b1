package generatepaymentschedule

import "billing-workers/internal/common/validation"

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["contractId", "startDate", "endDate", "rentAmount", "paymentFrequency"],
	"properties": {
		"contractId": {"type": "string", "minLength": 1, "maxLength": 100},
		"unitId": {"type": "string"},
		"contactId": {"type": "string"},
		"startDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}"},
		"endDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}"},
		"rentAmount": {"type": ["number", "string"]},
		"paymentFrequency": {"type": "string", "minLength": 1},
		"securityDeposit": {"type": ["number", "string"]}
	}
}`)
