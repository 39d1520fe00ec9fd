package web

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/feeds"
	"github.com/tobyv/warbler/util"
)

// outboxCollection is the on-disk outbox shape: an OrderedCollection of
// Create activities wrapping Note or Article objects.
type outboxCollection struct {
	OrderedItems []outboxActivity `json:"orderedItems"`
}

type outboxActivity struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Published string     `json:"published"`
	Object    outboxPost `json:"object"`
}

type outboxPost struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Published string `json:"published"`
}

// GetRSS renders the outbox as an RSS feed.
func GetRSS(conf *util.AppConfig, dataDir string) (string, error) {
	buf, err := os.ReadFile(filepath.Join(dataDir, "outbox.json"))
	if err != nil {
		return "", fmt.Errorf("failed to read outbox: %w", err)
	}

	var outbox outboxCollection
	if err := json.Unmarshal(buf, &outbox); err != nil {
		return "", fmt.Errorf("failed to parse outbox: %w", err)
	}

	author := conf.Conf.DisplayName
	if author == "" {
		author = conf.Conf.Username
	}

	feed := &feeds.Feed{
		Title:       author,
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s", conf.Conf.Domain)},
		Description: conf.Conf.Summary,
		Author:      &feeds.Author{Name: author},
		Created:     time.Now(),
	}

	for _, item := range outbox.OrderedItems {
		if item.Type != "Create" {
			continue
		}

		title := item.Object.Name
		if title == "" {
			title = item.Object.Published
		}
		link := item.Object.URL
		if link == "" {
			link = item.Object.ID
		}

		created, _ := time.Parse(time.RFC3339, item.Object.Published)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      item.Object.ID,
			Title:   title,
			Link:    &feeds.Link{Href: link},
			Content: item.Object.Content,
			Created: created,
		})
	}

	return feed.ToRss()
}
