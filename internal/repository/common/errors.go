package common

import "errors"

// ErrAlreadyExists возвращается репозиториями при нарушении уникальности.
var ErrAlreadyExists = errors.New("entity already exists")
