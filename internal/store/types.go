package store

// NotificationKind names the email template a notification renders with.
type NotificationKind string

const (
	NotifyNewMessage        NotificationKind = "new_message"
	NotifyConnectionRequest NotificationKind = "connection_request"
)

// Notification is an outbox row awaiting best-effort delivery.
type Notification struct {
	ID             int64
	Kind           NotificationKind
	ToEmail        string
	ToName         string
	FromName       string
	Preview        string
	ConversationID string
	Status         string // queued, sending, sent, failed
	Attempts       int
	ErrorMessage   string
}
