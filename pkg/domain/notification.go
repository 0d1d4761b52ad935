package domain

import "context"

// NotificationKind names the observable event emitted by a ledger operation.
type NotificationKind string

const (
	// NotifyCompetenceGrantedByStaff follows a successful staff grant.
	NotifyCompetenceGrantedByStaff NotificationKind = "competence.add"
	// NotifyActivityApproved follows a successful activity approval.
	NotifyActivityApproved NotificationKind = "activity.approve"
	// NotifyCompetenceAutoGranted follows a successful automatic grant.
	NotifyCompetenceAutoGranted NotificationKind = "competence.auto"
)

// Notification is emitted once per successful operation. Code carries the
// competence or activity identifier depending on Kind; By is empty for
// automatic grants.
type Notification struct {
	Kind     NotificationKind `json:"type"`
	Student  StudentID        `json:"student_id"`
	Code     uint32           `json:"code"`
	By       Identity         `json:"by,omitempty"`
	RecordID RecordID         `json:"record_id"`
	Term     TermKey          `json:"term"`
}

// CompetenceGrantedByStaff builds the notification for a staff grant.
func CompetenceGrantedByStaff(r StaffGrantedCompetence) Notification {
	return Notification{
		Kind:     NotifyCompetenceGrantedByStaff,
		Student:  r.StudentID,
		Code:     uint32(r.CompetenceID),
		By:       r.Granter,
		RecordID: r.ID,
		Term:     r.Term,
	}
}

// ActivityApproved builds the notification for an activity approval.
func ActivityApproved(r ApprovedActivity) Notification {
	return Notification{
		Kind:     NotifyActivityApproved,
		Student:  r.StudentID,
		Code:     uint32(r.ActivityID),
		By:       r.Approver,
		RecordID: r.ID,
		Term:     r.Term,
	}
}

// CompetenceAutoGranted builds the notification for an automatic grant.
func CompetenceAutoGranted(r AutoGrantedCompetence) Notification {
	return Notification{
		Kind:     NotifyCompetenceAutoGranted,
		Student:  r.StudentID,
		Code:     uint32(r.CompetenceID),
		RecordID: r.ID,
		Term:     r.Term,
	}
}

// NotificationSink receives notifications after their transaction committed.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, n Notification) error

// Notify implements NotificationSink.
func (f NotificationSinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
