package tasks

import "fmt"

// TaskNotFoundError is returned by Trigger for a name that was never registered.
type TaskNotFoundError struct {
	Name string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("no task registered as '%s'", e.Name)
}
