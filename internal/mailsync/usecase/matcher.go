package usecase

import (
	"strings"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	workflowdomain "mailflow-backend/internal/workflow/domain"
)

// Match returns the active email-received workflows whose filters all hold
// for msg, in input order. Empty filters match everything.
func Match(msg syncdomain.MessageMetadata, workflows []*workflowdomain.Workflow) []*workflowdomain.Workflow {
	var matched []*workflowdomain.Workflow
	for _, wf := range workflows {
		if wf == nil || !wf.IsActive() {
			continue
		}
		trigger, ok := wf.Definition.Trigger.(workflowdomain.EmailReceivedTrigger)
		if !ok {
			continue
		}
		if matchesTrigger(msg, trigger) {
			matched = append(matched, wf)
		}
	}
	return matched
}

func matchesTrigger(msg syncdomain.MessageMetadata, t workflowdomain.EmailReceivedTrigger) bool {
	if t.From != "" &&
		!containsFold(msg.FromAddress, t.From) &&
		!containsFold(msg.From, t.From) {
		return false
	}
	if t.SubjectContains != "" && !containsFold(msg.Subject, t.SubjectContains) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
