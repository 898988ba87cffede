package upload

import (
	"fmt"
	"strings"
	"time"
)

// ObjectKey builds the destination key "<prefix>/day=YYYY-MM-DD/<epochSeconds>-<name>". The date
// and the epoch both come from at in UTC. A trailing "/" on prefix is dropped, and an empty prefix
// yields a key starting at "day=".
//
// Parameters:
//   - prefix: Folder prefix
//   - name: Base name of the uploaded file
//   - at: Submission time
//
// Returns:
//   - key: Object key
func ObjectKey(prefix, name string, at time.Time) string {
	at = at.UTC()
	key := fmt.Sprintf("day=%s/%d-%s", at.Format(time.DateOnly), at.Unix(), name)

	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
