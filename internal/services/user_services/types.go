package user_services

// Logger interface for all user services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// maskUsername keeps only a short prefix of a username for logs.
func maskUsername(username string) string {
	return username[:min(4, len(username))] + "****"
}
