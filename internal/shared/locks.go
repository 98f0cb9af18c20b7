package shared

import "fmt"

// SessionKey builds the redis key holding a single session.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// UserSessionsKey builds the redis key indexing every session of a user.
func UserSessionsKey(username string) string {
	return fmt.Sprintf("user_sessions:%s", username)
}
