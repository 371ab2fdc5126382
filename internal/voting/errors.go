package voting

import "errors"

var (
	ErrInvalidPosition  = errors.New("must be one of yes, no, abstain or block")
	ErrStatementTooLong = errors.New("is too long (maximum is 250 characters)")
	ErrNotAMember       = errors.New("must be a member of the motion's group")
	ErrVotingClosed     = errors.New("can only be modified while the motion is open")

	ErrMotionNotFound = errors.New("motion not found")
)

// FieldError is a validation failure attached to one input field. It
// unwraps to one of the sentinel errors above.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}
