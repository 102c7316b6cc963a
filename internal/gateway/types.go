package gateway

// CreateTaskRequest is the JSON body for POST /users/{user_id}/tasks.
type CreateTaskRequest struct {
	Title             string   `json:"title" validate:"required,max=255"`
	Description       string   `json:"description" validate:"max=2000"`
	Priority          string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Tags              []string `json:"tags"`
	DueDate           *string  `json:"due_date"`
	RemindAt          *string  `json:"remind_at"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern" validate:"omitempty,oneof=daily weekly monthly yearly"`
}

// UpdateTaskRequest is the JSON body for PATCH /users/{user_id}/tasks/{task_id}.
// Pointer fields distinguish "not present in the request" from "set to the
// zero value", so a partial update never clobbers fields the caller didn't
// mention.
type UpdateTaskRequest struct {
	Title             *string  `json:"title" validate:"omitempty,max=255"`
	Description       *string  `json:"description" validate:"omitempty,max=2000"`
	Priority          *string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Tags              []string `json:"tags"`
	DueDate           *string  `json:"due_date"`
	RemindAt          *string  `json:"remind_at"`
	IsRecurring       *bool    `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern" validate:"omitempty,oneof=daily weekly monthly yearly"`
}

// CompleteTaskRequest is the JSON body for POST /users/{user_id}/tasks/{task_id}/complete.
type CompleteTaskRequest struct {
	IsCompleted bool `json:"is_completed"`
}

// errorResponse is the uniform JSON error body for every 4xx/5xx response.
type errorResponse struct {
	Error string `json:"error"`
}
