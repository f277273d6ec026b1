package notification

// Category groups notification types for per-recipient opt-outs.
type Category string

const (
	CategoryPaymentReminders Category = "payment_reminders"
	CategoryContractAlerts   Category = "contract_alerts"
	CategoryMaintenance      Category = "maintenance"
	CategoryAnnouncements    Category = "announcements"
)

// CategoryOf returns the opt-out category for t. Types without a category
// (test messages) cannot be disabled.
func CategoryOf(t Type) (Category, bool) {
	switch t {
	case TypePaymentReminder, TypeMonthlyUnpaidSummary:
		return CategoryPaymentReminders, true
	case TypeContractExpiring:
		return CategoryContractAlerts, true
	case TypeMaintenanceUpdate:
		return CategoryMaintenance, true
	case TypeAnnouncement:
		return CategoryAnnouncements, true
	}
	return "", false
}

// Preferences are a recipient's channel and category switches. Missing
// entries count as enabled.
type Preferences struct {
	RecipientID      string            `json:"recipientId"`
	PreferredChannel Channel           `json:"preferredChannel,omitempty"`
	Channels         map[Channel]bool  `json:"channels,omitempty"`
	Categories       map[Category]bool `json:"categories,omitempty"`
}

// DefaultPreferences enables everything and prefers WhatsApp.
func DefaultPreferences(recipientID string) *Preferences {
	return &Preferences{RecipientID: recipientID, PreferredChannel: ChannelWhatsApp}
}

func (p *Preferences) ChannelEnabled(c Channel) bool {
	if p == nil || p.Channels == nil {
		return true
	}
	enabled, ok := p.Channels[c]
	return !ok || enabled
}

func (p *Preferences) TypeEnabled(t Type) bool {
	cat, ok := CategoryOf(t)
	if !ok || p == nil || p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[cat]
	return !ok || enabled
}

// ResolveChannel picks the explicit override, else the preferred channel if
// enabled, else in-app.
func (p *Preferences) ResolveChannel(override Channel) Channel {
	if override != "" {
		return override
	}
	if p != nil && p.PreferredChannel != "" && p.ChannelEnabled(p.PreferredChannel) {
		return p.PreferredChannel
	}
	return ChannelInApp
}
