package monitor

import (
	"log"
	"time"

	"github.com/boltdb/bolt"

	"github.com/foodtrend/foodtrend/internal/common"
)

// UpdateMetrics refreshes engagement numbers for every submitted post.
// Social API calls happen outside the bolt transaction and are paced by
// StatsInterval to stay under the platforms' rate limits.
func (m *Monitor) UpdateMetrics() error {
	var ids []string
	if err := m.db.View(func(tx *bolt.Tx) error {
		return common.ForEachVisit(tx, m.cfg, func(cv *common.CreatorVisit) error {
			if cv.TikTokPost != nil || cv.InstagramPost != nil {
				ids = append(ids, cv.Id)
			}
			return nil
		})
	}); err != nil {
		return err
	}

	for _, id := range ids {
		cv := common.GetVisit(id, m.db, m.cfg)
		if cv == nil {
			continue
		}

		var dirty bool
		if cv.TikTokPost != nil {
			if err := cv.TikTokPost.UpdateData(m.cfg); err != nil {
				log.Println("Error updating TikTok data for visit", cv.Id, err)
			} else {
				cv.TikTokPosted = cv.TikTokPost.Published > 0
				dirty = true
			}
		}
		if cv.InstagramPost != nil {
			if err := cv.InstagramPost.UpdateData(m.cfg); err != nil {
				log.Println("Error updating Instagram data for visit", cv.Id, err)
			} else {
				cv.InstagramPosted = cv.InstagramPost.Published > 0
				dirty = true
			}
		}

		if dirty {
			if err := m.db.Update(func(tx *bolt.Tx) error {
				return common.SaveVisit(tx, cv, m.cfg)
			}); err != nil {
				log.Println("Error saving visit", cv.Id, err)
			}
		}

		time.Sleep(m.cfg.StatsInterval * time.Second)
	}

	return nil
}
