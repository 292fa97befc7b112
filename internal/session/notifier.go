package session

// Notifier shows transient messages to the operator
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
	Warning(message string)
}

// NopNotifier discards every message
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}
func (NopNotifier) Info(string)    {}
func (NopNotifier) Warning(string) {}
