package store

import (
	"errors"

	"github.com/mesosphere/svc-scheduler/pkg/types"
)

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
