package registry

// Default is the built-in template set used when no registry file is configured.
func Default() *TemplateRegistry {
	reminderVars := []string{"tenantName", "unitNumber", "amount", "dueDate", "daysUntilDue"}
	expiryVars := []string{"tenantName", "unitNumber", "endDate", "daysUntilExpiry"}
	announcementVars := []string{"title", "message", "recipientName"}

	return &TemplateRegistry{
		Version: "1.0.0",
		Templates: []Template{
			{
				ID: "payment_reminder.ar", Type: "payment_reminder", Language: "ar",
				Subject:   "تذكير بموعد الدفع",
				Body:      "عزيزي {{tenantName}}، نذكركم بأن دفعة الإيجار للوحدة {{unitNumber}} بمبلغ {{amount}} ريال مستحقة بتاريخ {{dueDate}} (بعد {{daysUntilDue}} أيام).",
				Variables: reminderVars,
			},
			{
				ID: "payment_reminder.en", Type: "payment_reminder", Language: "en",
				Subject:   "Rent payment reminder",
				Body:      "Dear {{tenantName}}, your rent payment of SAR {{amount}} for unit {{unitNumber}} is due on {{dueDate}} ({{daysUntilDue}} days).",
				Variables: reminderVars,
			},
			{
				ID: "contract_expiring.ar", Type: "contract_expiring", Language: "ar",
				Subject:   "قرب انتهاء عقد الإيجار",
				Body:      "عزيزي {{tenantName}}، ينتهي عقد إيجار الوحدة {{unitNumber}} بتاريخ {{endDate}} (بعد {{daysUntilExpiry}} يوماً).",
				Variables: expiryVars,
			},
			{
				ID: "contract_expiring.en", Type: "contract_expiring", Language: "en",
				Subject:   "Your lease is expiring",
				Body:      "Dear {{tenantName}}, the lease for unit {{unitNumber}} ends on {{endDate}} ({{daysUntilExpiry}} days).",
				Variables: expiryVars,
			},
			{
				ID: "announcement.ar", Type: "announcement", Language: "ar",
				Subject:   "{{title}}",
				Body:      "{{message}}",
				Variables: announcementVars,
			},
			{
				ID: "announcement.en", Type: "announcement", Language: "en",
				Subject:   "{{title}}",
				Body:      "{{message}}",
				Variables: announcementVars,
			},
			{
				ID: "maintenance_update.en", Type: "maintenance_update", Language: "en",
				Subject: "Maintenance update",
				Body:    "{{message}}",
			},
			{
				ID: "test.en", Type: "test", Language: "en",
				Body: "Test message for {{recipientName}}.",
			},
		},
	}
}
