package misc

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

type Status struct {
	Code   string `json:"status"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"msg,omitempty"`
}

func StatusOK(id string) Status {
	return Status{Code: "success", ID: id}
}

func StatusErr(reason string) Status {
	return Status{Code: "error", Reason: reason}
}

func BindJSON(c *gin.Context, v interface{}) error {
	body := c.Request.Body
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

func WriteJSON(c *gin.Context, code int, v interface{}) error {
	c.Writer.Header().Set("Content-Type", gin.MIMEJSON)
	c.Status(code)
	return json.NewEncoder(c.Writer).Encode(v)
}
