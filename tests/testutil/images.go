package testutil

import "encoding/base64"

// PNG is the smallest payload the upload sniffer accepts as image/png.
var PNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

// PNGDataURI returns PNG as a base64 data URI, the way the mini-app sends photos.
func PNGDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(PNG)
}
