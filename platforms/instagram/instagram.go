package instagram

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
)

const postInfoUrl = "%s/%s?fields=like_count,comments_count,media_url,permalink&access_token=%s"

var (
	ErrBadResponse = errors.New("empty data response from instagram post")
)

var apiClient = &http.Client{Timeout: 10 * time.Second}

type Post struct {
	Id      string `json:"id"`
	PostURL string `json:"post_url,omitempty"`

	Published int64 `json:"published,omitempty"` // epoch ts

	Likes    float64 `json:"likes,omitempty"`
	Comments float64 `json:"comments,omitempty"`

	LastUpdated int64 `json:"last_updated,omitempty"`
}

type postData struct {
	Id        string  `json:"id"`
	Likes     float64 `json:"like_count"`
	Comments  float64 `json:"comments_count"`
	Permalink string  `json:"permalink"`
	Error     *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// UpdateData refreshes engagement stats for the post. Sandbox mode
// leaves the stored stats untouched.
func (pt *Post) UpdateData(cfg *config.Config) error {
	if cfg.Sandbox {
		pt.LastUpdated = time.Now().Unix()
		return nil
	}

	var data postData
	endpoint := fmt.Sprintf(postInfoUrl, cfg.Instagram.Endpoint, pt.Id, cfg.Instagram.ClientId)
	if err := misc.HttpGetJson(apiClient, endpoint, &data); err != nil {
		return err
	}

	if data.Error != nil || data.Id == "" {
		return ErrBadResponse
	}

	pt.Likes = data.Likes
	pt.Comments = data.Comments
	if data.Permalink != "" {
		pt.PostURL = data.Permalink
	}
	pt.LastUpdated = time.Now().Unix()
	return nil
}
