package misc

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// All outbound API calls share one client with a hard deadline so a
// slow external service can't wedge a sweep.
var defaultClient = &http.Client{Timeout: 15 * time.Second}

func Request(method, endpoint, reqData string, respData interface{}) error {
	var r *http.Request
	if reqData == "" {
		r, _ = http.NewRequest(method, endpoint, nil)
	} else {
		r, _ = http.NewRequest(method, endpoint, strings.NewReader(reqData))
	}
	r.Header.Add("Content-Type", "application/json")

	resp, err := defaultClient.Do(r)
	if err != nil {
		log.Println("Error when hitting:", endpoint, err)
		return err
	}
	defer resp.Body.Close()

	if respData == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		log.Println("Error when unmarshalling from:", endpoint, err)
		return err
	}
	return nil
}

func Ping(endpoint string) error {
	resp, err := defaultClient.Get(endpoint)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
