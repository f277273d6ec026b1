package sendnotification

import "billing-workers/internal/common/validation"

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["type", "recipient"],
	"properties": {
		"type": {
			"type": "string",
			"enum": ["payment_reminder", "contract_expiring", "maintenance_update", "announcement", "test"]
		},
		"recipient": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"name": {"type": "string"},
				"phone": {"type": "string"},
				"email": {"type": "string"},
				"language": {"type": "string", "enum": ["", "ar", "en"]}
			}
		},
		"channel": {"type": "string", "enum": ["", "whatsapp", "email", "sms", "in_app"]},
		"data": {"type": "object"},
		"metadata": {"type": "object"},
		"dedupKey": {"type": "string", "maxLength": 255},
		"scheduledFor": {"type": "string", "format": "date-time"}
	}
}`)
