package conversation

// maxSuggestions caps the quick-reply hints appended to an assistant turn.
const maxSuggestions = 3

// Suggestions proposes up to three next messages for the user based on
// stage and what is still missing.
func Suggestions(s *Session) []string {
	var out []string
	switch s.Stage {
	case StageGreeting:
		out = []string{"Book a meeting", "What slots are open tomorrow?", "Book a consultation"}
	case StageCollecting:
		for _, field := range s.Entities.MissingFields() {
			switch field {
			case "service_type":
				out = append(out, "A consultation")
			case "preferred_date":
				out = append(out, "Tomorrow")
			case "preferred_time":
				out = append(out, "10 am")
			case "duration_minutes":
				out = append(out, "30 minutes")
			}
		}
	case StageConfirming:
		out = []string{"Yes, book it", "Change the time", "Cancel"}
	case StageCompleted:
		out = []string{"Book another meeting"}
		if s.Entities.ServiceType != nil {
			out[0] = "Book another " + *s.Entities.ServiceType
		}
	case StageCancelled:
		out = []string{"Book a meeting"}
		if s.Entities.ServiceType != nil {
			out[0] = "Book a " + *s.Entities.ServiceType
		}
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
