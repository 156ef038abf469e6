package render

// Fixed notices shown in the message thread.
const (
	NoDataNotice          = "No data found."
	LoadFailedNotice      = "Failed to load conversation history."
	SessionExpiredNotice  = "Session expired. Redirecting to login..."
	ConnectionErrorNotice = "Connection error. Please check if the server is running."
)

// ErrorNotice formats a domain error reported by the query service.
func ErrorNotice(message string) string {
	return "Error: " + message
}
