package physical

import "errors"

var errReadonly = errors.New("physical: connection is readonly")
