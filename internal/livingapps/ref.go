package livingapps

import (
	"net/url"
	"strings"
)

// Lookup fields point at records in other apps via record URLs of the form
//
//	{base}/apps/{appID}/records/{recordID}
//
// Dangling or malformed references are an expected steady-state condition
// (a referenced record may have been deleted), so decoding never fails: it
// yields an empty record id and display code treats that as unresolved.

// RecordURL encodes a lookup reference to a record of the given app.
func RecordURL(baseURL, appID, recordID string) string {
	return strings.TrimRight(baseURL, "/") + "/apps/" + appID + "/records/" + recordID
}

// ExtractRecordID returns the record id embedded in a lookup reference, or
// "" if the reference is empty or not a well-formed record URL.
func ExtractRecordID(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// .../apps/{appID}/records/{recordID}
	for i := 0; i+3 < len(parts); i++ {
		if parts[i] == "apps" && parts[i+2] == "records" {
			id := parts[i+3]
			if parts[i+1] == "" || id == "" {
				return ""
			}
			return id
		}
	}
	return ""
}
