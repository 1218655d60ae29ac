package event

import (
	"time"

	"go-auth-service/internal/model"
)

type Type string

const (
	TypeUserCreated Type = "UserCreated"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// UserCreated is the wire payload announced on account creation.
type UserCreated struct {
	EventType Type   `json:"event_type"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
}

func NewUserCreated(user model.UserView, at time.Time) UserCreated {
	return UserCreated{
		EventType: TypeUserCreated,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// Publisher announces account creation. Implementations must not block the
// caller on broker I/O and must absorb and log every failure.
type Publisher interface {
	PublishUserCreated(user model.UserView)
}
