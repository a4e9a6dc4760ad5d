package patient

import "errors"

var (
	ErrRecordNotFound  = errors.New("patient not found")
	ErrDuplicateID     = errors.New("patient already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)
