package enums

type TaskStatus int

const (
	TaskStatusCreated       TaskStatus = 0
	TaskStatusFixed         TaskStatus = 1
	TaskStatusFalsePositive TaskStatus = 2
	TaskStatusSkipped       TaskStatus = 3
	TaskStatusDeleted       TaskStatus = 4
	TaskStatusAlreadyFixed  TaskStatus = 5
	TaskStatusTooHard       TaskStatus = 6
)

func (s TaskStatus) Valid() bool {
	return s >= TaskStatusCreated && s <= TaskStatusTooHard
}
