package sendbulknotifications

import "billing-workers/internal/common/validation"

const maxRecipients = 1000

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["type", "recipients"],
	"properties": {
		"type": {
			"type": "string",
			"enum": ["payment_reminder", "contract_expiring", "maintenance_update", "announcement", "test"]
		},
		"recipients": {
			"type": "array",
			"minItems": 1,
			"maxItems": 1000,
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"phone": {"type": "string"},
					"email": {"type": "string"},
					"language": {"type": "string", "enum": ["", "ar", "en"]}
				}
			}
		},
		"channel": {"type": "string", "enum": ["", "whatsapp", "email", "sms", "in_app"]},
		"data": {"type": "object"},
		"metadata": {"type": "object"}
	}
}`)
