package ui

// Intents emitted by the views. The root model turns them into session
// calls; views never touch the session themselves.

// SelectMsg asks to select the notification with ID.
type SelectMsg struct {
	ID string
}

// MarkAllReadMsg asks to mark every notification read.
type MarkAllReadMsg struct{}

// OpenInboxMsg asks to show the inbox. A non-empty FocusID is selected
// there, the same way a deep link is.
type OpenInboxMsg struct {
	FocusID string
}

// OpenSendFormMsg asks to show the send form.
type OpenSendFormMsg struct{}

// BackMsg asks to close the current view.
type BackMsg struct{}
