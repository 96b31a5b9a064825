package tiktok

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
)

const videoInfoUrl = "%s/video/query/?video_id=%s&access_token=%s"

var (
	ErrBadResponse = errors.New("empty data response from tiktok video")
)

var apiClient = &http.Client{Timeout: 10 * time.Second}

type Post struct {
	Id      string `json:"id"`
	PostURL string `json:"post_url,omitempty"`

	Published int64 `json:"published,omitempty"` // epoch ts

	Views    float64 `json:"views,omitempty"`
	Likes    float64 `json:"likes,omitempty"`
	Comments float64 `json:"comments,omitempty"`
	Shares   float64 `json:"shares,omitempty"`

	LastUpdated int64 `json:"last_updated,omitempty"`
}

type videoData struct {
	Data *struct {
		ViewCount    float64 `json:"view_count"`
		LikeCount    float64 `json:"like_count"`
		CommentCount float64 `json:"comment_count"`
		ShareCount   float64 `json:"share_count"`
		ShareURL     string  `json:"share_url"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (pt *Post) UpdateData(cfg *config.Config) error {
	if cfg.Sandbox {
		pt.LastUpdated = time.Now().Unix()
		return nil
	}

	var data videoData
	endpoint := fmt.Sprintf(videoInfoUrl, cfg.TikTok.Endpoint, pt.Id, cfg.TikTok.Key)
	if err := misc.HttpGetJson(apiClient, endpoint, &data); err != nil {
		return err
	}

	if data.Data == nil || (data.Error != nil && data.Error.Code != "" && data.Error.Code != "ok") {
		return ErrBadResponse
	}

	pt.Views = data.Data.ViewCount
	pt.Likes = data.Data.LikeCount
	pt.Comments = data.Data.CommentCount
	pt.Shares = data.Data.ShareCount
	if data.Data.ShareURL != "" {
		pt.PostURL = data.Data.ShareURL
	}
	pt.LastUpdated = time.Now().Unix()
	return nil
}
