package errs

// Payload is the wire shape of a failure response.
type Payload struct {
	Status       int      `json:"status"`
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	ErrorDetails []Detail `json:"error_details"`
}

// ToPayload renders err for a front-end. Errors outside the taxonomy become
// an Internal payload without leaking their text into the message.
func ToPayload(err error) Payload {
	e := From(err)
	if e == nil {
		e = New(KindInternal, "")
	}
	msg := e.Message
	if msg == "" {
		msg = e.Class()
	}
	details := e.Details
	if details == nil {
		details = []Detail{}
	}
	return Payload{
		Status:       e.Status(),
		Error:        e.Class(),
		Message:      msg,
		ErrorDetails: details,
	}
}
