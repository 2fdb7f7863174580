package types

// Real-time event names. Every payload carries an "accountId" field.
const (
	EventJoinRoom            = "join:room"
	EventMessageSend         = "message:send"
	EventMessageReceived     = "message:received"
	EventUserTyping          = "user:typing"
	EventMessageRead         = "message:read"
	EventTaskUpdated         = "task:updated"
	EventAccountStatusChange = "account:statusChange"
)

// TaskUpdatedPayload is broadcast after a task mutation.
type TaskUpdatedPayload struct {
	AccountID int    `json:"accountId"`
	TaskID    int    `json:"taskId"`
	Action    string `json:"action"`
	Task      *Task  `json:"task,omitempty"`
}

// AccountStatusPayload is broadcast after an account changes status.
type AccountStatusPayload struct {
	AccountID int           `json:"accountId"`
	Status    AccountStatus `json:"status"`
	ChangedBy int           `json:"changedBy"`
}
