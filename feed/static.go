// File: feed/static.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package feed

import (
	"context"
	"time"

	"github.com/momentics/guppi-status/api"
)

// StaticFeed returns a fixed status. Used for dry runs and tests.
type StaticFeed struct {
	Status api.TelescopeStatus
	Err    error
}

// Read implements api.TelescopeFeed.
func (f StaticFeed) Read(ctx context.Context) (api.TelescopeStatus, error) {
	if f.Err != nil {
		return api.TelescopeStatus{}, unavailable("static", f.Err)
	}
	st := f.Status
	if st.ReadAt.IsZero() {
		st.ReadAt = time.Now()
	}
	return st, nil
}
