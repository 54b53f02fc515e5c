package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// TestSessionID returns a fresh anonymous session id
func TestSessionID() string {
	return uuid.NewString()
}
