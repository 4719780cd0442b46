package nlu

// QuickStartOptions is the static suggestion list shown before the first
// message of a conversation.
func QuickStartOptions() []BookingOption {
	return []BookingOption{
		{Label: "Book an appointment", Message: "I'd like to book an appointment."},
		{Label: "Find a professional", Message: "Help me find the right professional."},
		{Label: "Check availability", Message: "What times are available this week?"},
		{Label: "Something else", Message: "I have a question."},
	}
}
