package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns prefix-<uuid v4>. Session ids double as bearer handles, so
// they must stay unguessable.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
