package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns an opaque identifier whose uuid part is time-ordered, so ids
// sort roughly by creation.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
