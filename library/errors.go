package library

// ValidationError reports malformed input.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// NotFoundError reports a missing catalog record.
type NotFoundError string

func (e NotFoundError) Error() string { return string(e) }

// ConflictError reports a circulation rule violation: no copies
// available, loan limit reached, nothing to return or pay.
type ConflictError string

func (e ConflictError) Error() string { return string(e) }

const msgInvalidPatron = "Invalid patron ID. Must be exactly 6 digits."
