package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReminderDue = "reminders.due"

type ReminderDuePayload struct {
	ReminderID      string    `json:"reminderId"`
	LeadID          string    `json:"leadId"`
	CloserID        string    `json:"closerId"`
	TeamID          string    `json:"teamId"`
	CustomerName    string    `json:"customerName"`
	Address         string    `json:"address,omitempty"`
	AppointmentTime time.Time `json:"appointmentTime"`
}

func NewReminderDueTask(payload ReminderDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDue, data), nil
}

func ParseReminderDuePayload(task *asynq.Task) (ReminderDuePayload, error) {
	var payload ReminderDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderDuePayload{}, err
	}
	return payload, nil
}
