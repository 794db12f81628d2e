package live

// CommitNamespace prefixes the kind of every bus event published after a
// successful mutation.
const CommitNamespace = "commit."

// UsersTopic changes whenever any user profile is created or modified.
const UsersTopic = "users"

func UserTopic(id string) string { return "user:" + id }

func ConversationTopic(id string) string { return "conversation:" + id }

// MemberTopic changes when userID joins or leaves any conversation.
func MemberTopic(userID string) string { return "member:" + userID }

func MessagesTopic(conversationID string) string { return "messages:" + conversationID }

func MessageTopic(id string) string { return "message:" + id }

func RequestsSentTopic(userID string) string { return "requests:sender:" + userID }

func RequestsReceivedTopic(userID string) string { return "requests:receiver:" + userID }

func ReceiptTopic(userID, conversationID string) string {
	return "receipt:" + userID + ":" + conversationID
}

func TypingTopic(conversationID string) string { return "typing:" + conversationID }
