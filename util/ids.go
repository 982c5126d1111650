package util

import (
	"github.com/nu7hatch/gouuid"
	"github.com/rs/xid"
)

// GenID generates a record ID string.
// IDs are globally unique and sortable by creation time.
func GenID() string {
	id := xid.New()
	return id.String()
}

// GenPilotID generates a pilot ID string.
func GenPilotID() string {
	u, _ := uuid.NewV4()
	return u.String()
}
