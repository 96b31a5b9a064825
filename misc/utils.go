package misc

import (
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"
)

// HttpGetJson fetches a JSON endpoint and decodes into out, handling
// gzip/deflate encodings the social APIs like to return.
func HttpGetJson(c *http.Client, endpoint string, out interface{}) (err error) {
	var resp *http.Response
	if resp, err = c.Get(endpoint); err != nil {
		return
	}
	defer resp.Body.Close()

	switch resp.Header.Get("Content-Encoding") {
	case "":
		err = json.NewDecoder(resp.Body).Decode(out)
	case "gzip":
		var r *gzip.Reader
		if r, err = gzip.NewReader(resp.Body); err != nil {
			return
		}
		err = json.NewDecoder(r).Decode(out)
		r.Close()
	case "deflate":
		r := flate.NewReader(resp.Body)
		err = json.NewDecoder(r).Decode(out)
		r.Close()
	}

	return
}

func TruncateFloat(f float64, digits int) float64 {
	pow := math.Pow10(digits)
	return math.Trunc(f*pow) / pow
}

// WithinLast reports whether the unix timestamp ts falls within the
// last given hours (relative to now).
func WithinLast(ts int64, hours int64, now time.Time) bool {
	return ts > now.Unix()-hours*60*60 && ts <= now.Unix()
}

// WithinHours reports whether ts is between min and max hours from now.
func WithinHours(ts int64, min, max int64, now time.Time) bool {
	return ts > now.Unix()+min*60*60 && ts <= now.Unix()+max*60*60
}

func TrimEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
