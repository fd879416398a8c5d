package scheduling

// Recorder receives booking workflow events for metrics. Implementations must
// be safe for concurrent use.
type Recorder interface {
	AppointmentCreated(status string)
	AppointmentRescheduled()
	SlotConflict(operation string)
	StatusChanged(from, to string)
	TransitionRejected(from, to string)
}

// Operations reported to Recorder.SlotConflict.
const (
	OpCreate     = "create"
	OpReschedule = "reschedule"
)

type nopRecorder struct{}

func (nopRecorder) AppointmentCreated(string)         {}
func (nopRecorder) AppointmentRescheduled()           {}
func (nopRecorder) SlotConflict(string)               {}
func (nopRecorder) StatusChanged(string, string)      {}
func (nopRecorder) TransitionRejected(string, string) {}
